// ABOUTME: Console transport for exercising the relay core without a chat network
// ABOUTME: Reads "user-id: text" lines from stdin and prints outbound calls

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/devzone/class-relay/internal/engine"
	"github.com/devzone/class-relay/internal/identity"
	"github.com/devzone/class-relay/internal/messenger"
	"github.com/devzone/class-relay/internal/service"
)

// consoleMessenger prints every transport call so the relay can be exercised
// end to end from a terminal.
type consoleMessenger struct {
	mu         sync.Mutex
	out        io.Writer
	nextThread int
}

func newConsoleMessenger(out io.Writer) *consoleMessenger {
	return &consoleMessenger{out: out}
}

func (c *consoleMessenger) SendText(ctx context.Context, chatID, threadID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if threadID != "" {
		fmt.Fprintf(c.out, "-> [%s/%s] %s\n", chatID, threadID, text)
	} else {
		fmt.Fprintf(c.out, "-> [%s] %s\n", chatID, text)
	}
	return nil
}

func (c *consoleMessenger) CopyMessage(ctx context.Context, destChatID, destThreadID string, src messenger.MessageRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "-> [%s/%s] (copy of %s/%s)\n", destChatID, destThreadID, src.ChatID, src.MessageID)
	return nil
}

func (c *consoleMessenger) CreateThread(ctx context.Context, workspaceID, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextThread++
	id := strconv.Itoa(c.nextThread)
	fmt.Fprintf(c.out, "-> thread %q created in %s as #%s\n", name, workspaceID, id)
	return id, nil
}

func (c *consoleMessenger) RenameThread(ctx context.Context, workspaceID, threadID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "-> thread #%s renamed to %q\n", threadID, name)
	return nil
}

func (c *consoleMessenger) GetMembershipStatus(ctx context.Context, groupID, userID string) (messenger.MembershipStatus, error) {
	return messenger.MemberActive, nil
}

func (c *consoleMessenger) RestrictMember(ctx context.Context, groupID, userID string, restricted bool) error {
	fmt.Fprintf(c.out, "-> restrict %s in %s: %v\n", userID, groupID, restricted)
	return nil
}

func (c *consoleMessenger) BanMember(ctx context.Context, groupID, userID string) error {
	fmt.Fprintf(c.out, "-> ban %s in %s\n", userID, groupID)
	return nil
}

func (c *consoleMessenger) UnbanMember(ctx context.Context, groupID, userID string) error {
	fmt.Fprintf(c.out, "-> unban %s in %s\n", userID, groupID)
	return nil
}

func (c *consoleMessenger) RequestVerifiedContact(ctx context.Context, chatID, prompt string) error {
	fmt.Fprintf(c.out, "-> [%s] (contact request) %s\n", chatID, prompt)
	return nil
}

func (c *consoleMessenger) CreatePaymentInvoice(ctx context.Context, chatID string, inv messenger.Invoice) error {
	fmt.Fprintf(c.out, "-> [%s] (invoice) %s: %d\n", chatID, inv.Label, inv.Amount)
	return nil
}

// runConsole feeds stdin lines into the service until EOF or cancellation.
// Line format: "<user-id> <text>". A leading "@thread-id" addresses a
// workspace thread, for playing the instructor side.
func runConsole(ctx context.Context, svc *service.Service) error {
	color.Yellow("console transport: '<user-id> <text>' per line, Ctrl-D to exit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
			if len(fields) < 2 {
				continue
			}
			userID, text := fields[0], fields[1]

			var threadID string
			if strings.HasPrefix(text, "@") {
				parts := strings.SplitN(text[1:], " ", 2)
				if len(parts) == 2 {
					threadID, text = parts[0], parts[1]
				}
			}

			seq++
			msg := engine.Inbound{
				Intent:   intentForConsole(text),
				Text:     text,
				Ref:      messenger.MessageRef{ChatID: userID, MessageID: strconv.Itoa(seq)},
				ThreadID: threadID,
			}
			if lang, ok := strings.CutPrefix(strings.TrimSpace(text), "/lang "); ok {
				msg.Intent = engine.IntentSetLanguage
				msg.Lang = strings.TrimSpace(lang)
			}
			if phone, ok := strings.CutPrefix(strings.TrimSpace(text), "/contact "); ok {
				msg.Contact = &engine.Contact{OwnerID: userID, Phone: strings.TrimSpace(phone)}
			}
			prof := identity.Profile{ID: userID, DisplayName: "user-" + userID}
			if err := svc.HandleInbound(ctx, prof, msg); err != nil {
				color.Red("handle: %v", err)
			}
		}
	}
}

// intentForConsole maps a few slash commands to intents so every flow can be
// driven from the terminal. A chat transport adapter does this mapping from
// localized button labels instead.
func intentForConsole(text string) engine.Intent {
	switch strings.TrimSpace(text) {
	case "/homework":
		return engine.IntentShowHomework
	case "/vocabulary":
		return engine.IntentShowVocabulary
	case "/materials":
		return engine.IntentShowMaterials
	case "/results":
		return engine.IntentShowResults
	case "/set_homework":
		return engine.IntentSetHomework
	case "/set_vocabulary":
		return engine.IntentSetVocabulary
	case "/set_materials":
		return engine.IntentSetMaterials
	case "/post":
		return engine.IntentPostToGroup
	case "/broadcast":
		return engine.IntentBroadcastAll
	case "/feedback":
		return engine.IntentFeedback
	case "/help":
		return engine.IntentTeacherChat
	case "/new_result":
		return engine.IntentNewResult
	case "/phones":
		return engine.IntentListPhones
	case "/stats":
		return engine.IntentStats
	case "/gift":
		return engine.IntentGift
	case "/confirm":
		return engine.IntentConfirm
	case "/cancel":
		return engine.IntentCancel
	case "/finish":
		return engine.IntentFinish
	default:
		return engine.IntentNone
	}
}
