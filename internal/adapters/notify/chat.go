package notify

import (
    "context"
    "fmt"
    "io"
    stdlog "log"
    "strings"
    "time"

    shoutrrr "github.com/nicholas-fedor/shoutrrr"
    router "github.com/nicholas-fedor/shoutrrr/pkg/router"
    stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

    "leakhound/internal/domain"
)

// Chat posts human-readable alerts through shoutrrr service URLs
// (slack://, discord://, telegram://, ...).
type Chat struct {
    sender *router.ServiceRouter
}

func NewChat(urls []string, timeout time.Duration) (*Chat, error) {
    if len(urls) == 0 {
        return nil, fmt.Errorf("at least one URL is required")
    }
    sender, err := shoutrrr.CreateSender(urls...)
    if err != nil {
        return nil, fmt.Errorf("invalid notification url: %w", err)
    }
    if timeout > 0 {
        sender.Timeout = timeout
    }
    sender.SetLogger(stdlog.New(io.Discard, "", 0))
    return &Chat{sender: sender}, nil
}

func (c *Chat) Name() string { return "chat" }

func (c *Chat) Notify(_ context.Context, ev domain.Notification) error {
    params := stypes.Params{}
    if ev.Title != "" {
        params.SetTitle(ev.Title)
    }
    for _, err := range c.sender.Send(chatBody(ev), &params) {
        if err != nil {
            return err
        }
    }
    return nil
}

func chatBody(ev domain.Notification) string {
    var b strings.Builder
    b.WriteString(ev.Message)
    if ev.URL != "" {
        b.WriteString("\n")
        b.WriteString(ev.URL)
    }
    if ev.ProductID != "" {
        fmt.Fprintf(&b, "\nproduct: %s", ev.ProductID)
    }
    if ev.RunID != "" {
        fmt.Fprintf(&b, "\nrun: %s", ev.RunID)
    }
    return b.String()
}
