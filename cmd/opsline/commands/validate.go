package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsline/opsline/pkg/config"
	"github.com/opsline/opsline/pkg/inventory"
	"github.com/opsline/opsline/pkg/playbook"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <playbook>",
		Short: "Validate inventory, config, and playbook without connecting",
		Example: `  # Check a playbook and the default inventory
  opsline validate deploy.yaml

  # Check against a specific inventory and config
  opsline validate deploy.yaml -i prod.yaml -c opsline.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if _, err := config.Load(configPath); err != nil {
					return err
				}
				fmt.Printf("config %s: ok\n", configPath)
			}

			inv, err := inventory.Load(inventoryPath)
			if err != nil {
				return err
			}
			fmt.Printf("inventory %s: ok (%d hosts)\n", inventoryPath, inv.Len())

			pb, err := playbook.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("playbook %s: ok (%d tasks)\n", args[0], len(pb.Tasks))

			return nil
		},
	}

	return cmd
}
