package classic

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/inbox"
	"github.com/bassamadnan/tmpmail/poller"
	"github.com/bassamadnan/tmpmail/store"
)

type stubGateway struct{}

func (stubGateway) GenerateAddress(_ context.Context, username, domain string) (*api.GeneratedAddress, error) {
	return &api.GeneratedAddress{Email: username + "@" + domain}, nil
}

func (stubGateway) Domains(context.Context) ([]string, error) {
	return []string{"example.test"}, nil
}

func (stubGateway) Envelopes(context.Context, string) ([]api.Envelope, error) {
	return nil, nil
}

func (stubGateway) Content(context.Context, api.UID, string) (*api.Content, error) {
	return &api.Content{}, nil
}

func (stubGateway) Attachments(context.Context, api.UID, string) ([]api.Attachment, error) {
	return nil, nil
}

func TestRetargetFollowsSelectionChangedElsewhere(t *testing.T) {
	ctx := context.Background()
	jar, err := store.NewFileJar(filepath.Join(t.TempDir(), "jar.json"))
	if err != nil {
		t.Fatalf("NewFileJar: %v", err)
	}
	book := store.NewBook(jar, "", store.Policy{MaxRecords: 10, Expiry: store.DefaultExpiry}, nil)
	manager, err := inbox.NewManager(ctx, stubGateway{}, book, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	for _, name := range []string{"alice", "bob"} {
		if _, err := manager.Generate(ctx, name, "example.test"); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	p := poller.New(ctx, 30*time.Second, poller.WithEnabled(false))
	t.Cleanup(p.Close)

	a := NewApp(ctx, Options{Manager: manager, Poller: p, RefreshInterval: 30 * time.Second})
	if got := p.State().Target; got != "bob@example.test" {
		t.Fatalf("initial target = %q", got)
	}

	if err := manager.Delete(ctx, "bob@example.test"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	a.retarget()
	if got := p.State().Target; got != "alice@example.test" {
		t.Fatalf("target = %q, want alice@example.test", got)
	}
	if title := a.envelopeList.GetTitle(); !strings.Contains(title, "alice@example.test") {
		t.Fatalf("list title = %q", title)
	}

	if err := manager.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	a.retarget()
	if got := p.State().Target; got != "" {
		t.Fatalf("target = %q after clearing", got)
	}
	if !a.previewPane.IsShowingWelcome() {
		t.Fatal("preview should fall back to the welcome message")
	}
}
