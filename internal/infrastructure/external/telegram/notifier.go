package telegram

import (
	"context"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// DefaultWebAppButtonText is the label of the Mini App button attached to
// notifications.
const DefaultWebAppButtonText = "Открыть Teens Space"

// Notifier sends HTML notifications with an "open Mini App" button.
// It implements eventhandler.Notifier.
type Notifier struct {
	client     *Client
	webAppURL  string
	buttonText string
}

// NewNotifier creates a notifier. With an empty webAppURL messages are sent
// without a keyboard.
func NewNotifier(client *Client, webAppURL string) *Notifier {
	return &Notifier{
		client:     client,
		webAppURL:  webAppURL,
		buttonText: DefaultWebAppButtonText,
	}
}

// Notify sends html to chatID. A user who blocked the bot yields an error
// matching shared.ErrForbidden.
func (n *Notifier) Notify(ctx context.Context, chatID int64, html string) error {
	var keyboard *InlineKeyboardMarkup
	if n.webAppURL != "" {
		keyboard = NewKeyboard().Row(WebAppButton(n.buttonText, n.webAppURL)).Build()
	}

	_, err := n.client.SendWithKeyboard(ctx, chatID, html, keyboard)
	if err == nil {
		return nil
	}
	if IsUserBlocked(err) {
		return shared.WrapError("telegram", "Notify", shared.ErrForbidden, "recipient blocked the bot", err)
	}
	return err
}
