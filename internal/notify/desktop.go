// internal/notify/desktop.go — freedesktop notification sink.
package notify

import (
	"fmt"
	"log/slog"
	"sync"

	fdnotify "github.com/TheCreeper/go-notify"
	"github.com/godbus/dbus/v5"
)

const (
	appName = "gmail-notifier"

	// actionKeyDefault is the reserved freedesktop action key for "the user
	// activated the notification itself", as opposed to a named button.
	actionKeyDefault = "default"

	notificationsPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsInterface = "org.freedesktop.Notifications"
	actionInvokedSignal    = notificationsInterface + ".ActionInvoked"
)

// Desktop delivers notifications through the desktop notification service
// and remembers server-assigned IDs so they can be withdrawn later. When the
// session bus is available it also listens for ActionInvoked signals and
// reports the activated notification's deep link.
type Desktop struct {
	log *slog.Logger

	mu         sync.Mutex
	ids        map[string]uint32
	urls       map[uint32]string
	onActivate ActivationFunc

	listenOnce sync.Once
}

func NewDesktop(log *slog.Logger) *Desktop {
	if log == nil {
		log = slog.Default()
	}
	return &Desktop{
		log:  log,
		ids:  map[string]uint32{},
		urls: map[uint32]string{},
	}
}

func (d *Desktop) Show(n Notification) error {
	ntf := fdnotify.NewNotification(n.Title, fmt.Sprintf("%s\n%s", n.Subtitle, n.Body))
	ntf.AppName = appName
	ntf.AppIcon = "mail-unread"
	ntf.Actions = []string{actionKeyDefault, "Open"}
	id, err := ntf.Show()
	if err != nil {
		return fmt.Errorf("show notification for %s: %w", n.ID, err)
	}
	d.mu.Lock()
	d.ids[n.ID] = id
	d.urls[id] = n.URL
	d.mu.Unlock()
	return nil
}

func (d *Desktop) Withdraw(id string) error {
	d.mu.Lock()
	serverID, ok := d.ids[id]
	delete(d.ids, id)
	delete(d.urls, serverID)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	if err := fdnotify.CloseNotification(serverID); err != nil {
		return fmt.Errorf("withdraw notification for %s: %w", id, err)
	}
	return nil
}

// OnActivation registers fn to receive the deep link of an activated
// notification. The first call starts the session-bus signal listener; when
// no session bus is reachable the registration stays in place but
// activations never arrive.
func (d *Desktop) OnActivation(fn ActivationFunc) {
	d.mu.Lock()
	d.onActivate = fn
	d.mu.Unlock()

	d.listenOnce.Do(func() {
		if err := d.listen(); err != nil {
			d.log.Warn("notification activation unavailable", "error", err)
		}
	})
}

func (d *Desktop) listen() error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("connect to session bus: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(notificationsPath),
		dbus.WithMatchInterface(notificationsInterface),
		dbus.WithMatchMember("ActionInvoked"),
	); err != nil {
		return fmt.Errorf("subscribe to notification signals: %w", err)
	}
	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	go func() {
		for sig := range signals {
			if sig.Name != actionInvokedSignal || len(sig.Body) < 2 {
				continue
			}
			serverID, okID := sig.Body[0].(uint32)
			key, okKey := sig.Body[1].(string)
			if okID && okKey {
				d.handleAction(serverID, key)
			}
		}
	}()
	return nil
}

func (d *Desktop) handleAction(serverID uint32, key string) {
	if key != actionKeyDefault {
		return
	}
	d.mu.Lock()
	url := d.urls[serverID]
	fn := d.onActivate
	d.mu.Unlock()
	if fn != nil && url != "" {
		fn(url)
	}
}

var _ Sink = (*Desktop)(nil)
var _ Activatable = (*Desktop)(nil)
