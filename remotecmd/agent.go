package remotecmd

import (
	"net"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// dialAgent connects to a running ssh-agent over its unix socket and
// returns an AuthMethod backed by whatever keys it holds.
func dialAgent(sock string) (ssh.AuthMethod, error) {
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, err
	}
	client := agent.NewClient(conn)
	return ssh.PublicKeysCallback(client.Signers), nil
}
