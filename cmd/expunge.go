package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage/remote"
	"github.com/creativeprojects/convmon/term"
	"github.com/spf13/cobra"
)

var expungeCmd = &cobra.Command{
	Use:   "expunge account folder uid [uid]...",
	Short: "Permanently remove emails from a folder on the server",
	RunE:  runExpunge,
}

func init() {
	rootCmd.AddCommand(expungeCmd)
}

func runExpunge(cmd *cobra.Command, args []string) error {
	accountConfig, err := accountFromArgs(args)
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errors.New("missing folder name and uid")
	}
	account, err := NewAccount(accountConfig)
	if err != nil {
		return fmt.Errorf("cannot open account: %w", err)
	}
	defer account.Close()

	source, err := account.Folder(mailbox.NewPath(args[1], account.Delimiter()))
	if err != nil {
		return fmt.Errorf("cannot open folder %q: %w", args[1], err)
	}
	folder, ok := source.(*remote.Folder)
	if !ok {
		return errors.New("folder is not on a remote account")
	}

	ids := make([]mailbox.EmailID, 0, len(args)-2)
	for _, arg := range args[2:] {
		uid, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid uid %q: %w", arg, err)
		}
		ids = append(ids, mailbox.NewEmailIDFromUint(uint32(uid)))
	}

	err = folder.Expunge(context.Background(), ids)
	if err != nil {
		return fmt.Errorf("cannot expunge emails: %w", err)
	}
	term.Infof("%d email(s) expunged from %s", len(ids), args[1])
	return nil
}
