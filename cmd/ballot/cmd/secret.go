package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const secretFlag = "secret"

var errSecretRequired = errors.New("secret is required")

// readSecret returns --secret when it was given. Otherwise it prompts on the
// terminal without echo, or reads the first line of piped stdin.
func (c *cli) readSecret(cmd *cobra.Command, prompt string) (string, error) {
	if cmd.Flags().Changed(secretFlag) {
		return cmd.Flags().GetString(secretFlag)
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.printf("%s ", prompt)
		raw, err := term.ReadPassword(int(f.Fd()))
		c.printf("\n")
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		if len(raw) == 0 {
			return "", errSecretRequired
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read secret: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errSecretRequired
	}
	return line, nil
}
