// Command desfire-cli drives a MIFARE DESFire EV1/EV2 card over a PC/SC
// reader: card info, application/key/file management, and batch
// provisioning from a YAML plan.
package main

import "github.com/go-desfire/desfire/cmd/desfire-cli/cmd"

func main() {
	cmd.Execute()
}
