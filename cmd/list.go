package cmd

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Display the folders of an account",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	accountConfig, err := accountFromArgs(args)
	if err != nil {
		return err
	}
	account, err := NewAccount(accountConfig)
	if err != nil {
		return fmt.Errorf("cannot open account: %w", err)
	}
	defer account.Close()

	table := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Folder", "Emails"},
	})
	for _, folder := range account.Folders() {
		total := folder.Properties().EmailTotal
		table.Data = append(table.Data, []string{
			folder.Path().Name,
			strconv.Itoa(total),
		})
	}
	return table.Render()
}
