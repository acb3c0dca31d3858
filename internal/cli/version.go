package cli

import (
	"context"
	"fmt"

	"github.com/echolog/echologd/internal"
)

// Represents the 'echologd version' command.
type VersionCmd struct{}

// Executes the version command.
func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Println(internal.VersionString())
	return nil
}
