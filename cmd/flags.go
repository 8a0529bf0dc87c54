package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gavault/internal/app"
	"gavault/internal/identity"
)

// operatorFlags are shared by the commands that act on one identity.
type operatorFlags struct {
	configPath string
	debug      bool
	kind       string
	id         string
}

func (f *operatorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to the YAML configuration file")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&f.kind, "kind", identity.KindWeb, "Identity kind: web or plugin")
	cmd.Flags().StringVar(&f.id, "id", "", "Session id (web) or user id (plugin)")
	_ = cmd.MarkFlagRequired("id")
}

func (f *operatorFlags) identity() (identity.Identity, error) {
	id, ok := identity.Parse(f.kind, f.id)
	if !ok {
		return identity.Identity{}, fmt.Errorf("invalid identity %q of kind %q (kind must be %s or %s)",
			f.id, f.kind, identity.KindWeb, identity.KindPlugin)
	}
	return id, nil
}

func (f *operatorFlags) open() (*app.Inspector, identity.Identity, error) {
	id, err := f.identity()
	if err != nil {
		return nil, identity.Identity{}, err
	}
	in, err := app.NewInspector(app.NewConfig(f.debug, f.configPath))
	if err != nil {
		return nil, identity.Identity{}, err
	}
	return in, id, nil
}
