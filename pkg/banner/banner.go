// Package banner prints the startup banner and status lines, kept from
// the teacher almost verbatim — only the art and the status fields
// changed to describe a Trojan client instead of an HTTP-tunnel proxy.
package banner

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

const art = `
████████╗██████╗  ██████╗      ██╗ █████╗ ███╗   ██╗
╚══██╔══╝██╔══██╗██╔═══██╗     ██║██╔══██╗████╗  ██║
   ██║   ██████╔╝██║   ██║     ██║███████║██╔██╗ ██║
   ██║   ██╔══██╗██║   ██║██   ██║██╔══██║██║╚██╗██║
   ██║   ██║  ██║╚██████╔╝╚█████╔╝██║  ██║██║ ╚████║
   ╚═╝   ╚═╝  ╚═╝ ╚═════╝  ╚════╝ ╚═╝  ╚═╝╚═╝  ╚═══╝
`

// Print renders the startup banner.
func Print() {
	c := color.New(color.FgCyan, color.Bold)
	c.Println(art)
	fmt.Println("   Trojan SOCKS5 client")
	fmt.Printf("   Start Time: %s\n", time.Now().Format(time.RFC1123))
	fmt.Println(strings.Repeat("-", 50))
}

// PrintClientStatus reports the listener and upstream once the client
// is accepting connections.
func PrintClientStatus(localAddr, remoteAddr, sni string) {
	color.Green("✓ Client Started Successfully")
	fmt.Printf("   • Listening:     %s (SOCKS5)\n", localAddr)
	fmt.Printf("   • Trojan server: %s\n", remoteAddr)
	if sni != "" {
		fmt.Printf("   • SNI:           %s\n", sni)
	}
	fmt.Println(strings.Repeat("-", 50))
}
