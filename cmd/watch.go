package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/creativeprojects/convmon/conversation"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/monitor"
	"github.com/creativeprojects/convmon/storage"
	"github.com/creativeprojects/convmon/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Display the live conversation list of a folder",
	RunE:  runWatch,
}

var watchFlags struct {
	folder string
	window int
}

func init() {
	rootCmd.AddCommand(watchCmd)
	flag := watchCmd.Flags()
	flag.StringVarP(&watchFlags.folder, "folder", "f", "", "folder to monitor (defaults to the account folder, or INBOX)")
	flag.IntVarP(&watchFlags.window, "window", "w", 0, "minimum number of conversations to display")
}

func runWatch(cmd *cobra.Command, args []string) error {
	accountConfig, err := accountFromArgs(args)
	if err != nil {
		return err
	}
	account, err := NewAccount(accountConfig)
	if err != nil {
		return fmt.Errorf("cannot open account: %w", err)
	}
	defer account.Close()

	folderName := watchFlags.folder
	if folderName == "" {
		folderName = accountConfig.Folder
	}
	if folderName == "" {
		folderName = "INBOX"
	}
	folder, err := account.Folder(mailbox.NewPath(folderName, account.Delimiter()))
	if err != nil {
		return fmt.Errorf("cannot open folder %q: %w", folderName, err)
	}

	window := watchFlags.window
	if window == 0 {
		window = accountConfig.Window
	}

	area, err := pterm.DefaultArea.WithFullscreen().Start()
	if err != nil {
		return err
	}
	defer area.Stop()

	renderer := &watchRenderer{area: area}
	monitorConfig := monitor.Config{
		OpenFlags:   storage.OpenReestablishConnections,
		Fields:      storage.FieldsRequired | storage.FieldEnvelope,
		WindowCount: window,
		Listener:    renderer,
	}
	if global.verbose {
		monitorConfig.DebugLogger = log.Default()
	}
	mon := monitor.NewMonitor(account, folder, monitorConfig)
	renderer.monitor = mon
	mon.SetActivityFunc(renderer.setActive)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started, err := mon.Start(ctx)
	if err != nil {
		return fmt.Errorf("cannot start monitoring: %w", err)
	}
	if !started {
		return nil
	}

	<-ctx.Done()
	term.Info("Stopping...")
	return mon.Stop(context.Background())
}

// watchRenderer redraws the conversation list on every monitor notification.
type watchRenderer struct {
	monitor.NoListener
	monitor *monitor.Monitor
	area    *pterm.AreaPrinter
	active  int32
}

func (r *watchRenderer) setActive(active bool) {
	value := int32(0)
	if active {
		value = 1
	}
	atomic.StoreInt32(&r.active, value)
	r.render()
}

func (r *watchRenderer) MonitoringStarted() {
	r.render()
}

func (r *watchRenderer) ScanCompleted(localOnly bool) {
	r.render()
}

func (r *watchRenderer) SeedCompleted() {
	r.render()
}

func (r *watchRenderer) ConversationsAdded(conversations []*conversation.Conversation) {
	r.render()
}

func (r *watchRenderer) ConversationAppended(conv *conversation.Conversation, emails []mailbox.Email) {
	r.render()
}

func (r *watchRenderer) ConversationTrimmed(conv *conversation.Conversation, emails []mailbox.Email) {
	r.render()
}

func (r *watchRenderer) ConversationRemoved(conv *conversation.Conversation) {
	r.render()
}

func (r *watchRenderer) EmailFlagsChanged(conv *conversation.Conversation, email mailbox.Email) {
	r.render()
}

func (r *watchRenderer) ScanError(err error) {
	term.Errorf("scan error: %s", err)
}

func (r *watchRenderer) render() {
	conversations := r.monitor.Conversations()
	lines := make([]string, 0, len(conversations)+2)
	header := fmt.Sprintf("%d conversations, %d emails", len(conversations), r.monitor.EmailCount())
	if atomic.LoadInt32(&r.active) == 1 {
		header += " (syncing...)"
	} else if r.monitor.AllMessagesLoaded() {
		header += " (complete)"
	}
	lines = append(lines, pterm.FgLightGreen.Sprint(header), "")

	for index, conv := range conversations {
		if index >= 40 {
			lines = append(lines, pterm.FgGray.Sprintf("... and %d more", len(conversations)-index))
			break
		}
		lines = append(lines, renderConversation(conv))
	}
	r.area.Update(strings.Join(lines, "\n"))
}

func renderConversation(conv *conversation.Conversation) string {
	latest, ok := conv.LatestReceived(conversation.LocationInFolderOutOfFolder, nil)
	if !ok {
		return ""
	}
	subject := latest.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	line := fmt.Sprintf("%s  %-60.60s", conv.NewestDate().Format("2006-01-02 15:04"), subject)
	if conv.Size() > 1 {
		line += fmt.Sprintf(" (%d)", conv.Size())
	}
	if conv.IsFlagged() {
		line = pterm.FgYellow.Sprint(line)
	}
	if conv.IsUnread() {
		return pterm.Bold.Sprint(line)
	}
	return line
}
