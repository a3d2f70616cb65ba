package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/macrosync/internal/services"
)

var hashTokenLength int

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Hash an API token for auth.token_hash",
	Long: `Prints the bcrypt hash to put in auth.token_hash. Without an argument a
random token is generated and printed along with its hash.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := ""
		if len(args) == 1 {
			token = args[0]
		} else {
			var err error
			if token, err = services.GenerateToken(hashTokenLength); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token: %s\n", token)
		}

		hash, err := services.NewAuthService(cfg.Auth).HashToken(token)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "token_hash: %s\n", hash)
		return nil
	},
}

func init() {
	hashTokenCmd.Flags().IntVar(&hashTokenLength, "length", 32, "length of a generated token")
}
