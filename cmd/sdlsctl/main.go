// Command sdlsctl is an operator CLI for provisioning keys and Security
// Associations against a running engine's seed configuration, and for
// inspecting the tamper/security event log.
package main

import "github.com/groundlink/sdls/cmd/sdlsctl/internal/cmd"

func main() {
	cmd.Execute()
}
