package factory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/config"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/errs"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/frame"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/reply/filesystem"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/reply/kubernetes"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/reply/memory"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/stats"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Port = 5000
	cfg.ReplySource = config.ReplySourceMemory
	return cfg
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestReplySourceFactoryCreate(t *testing.T) {
	ctx := testContext(t)
	path := filepath.Join(t.TempDir(), "reply.txt")
	if err := os.WriteFile(path, []byte("from file"), 0o644); err != nil {
		t.Fatal(err)
	}
	clientset := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "ackd", Namespace: "apps"},
		Data:       map[string]string{"reply": "from configmap"},
	})

	tests := []struct {
		name      string
		configure func(*config.Config)
		wantType  any
		wantReply string
	}{
		{
			name:      "memory",
			configure: func(c *config.Config) {},
			wantType:  &memory.Source{},
			wantReply: core.DefaultReply,
		},
		{
			name: "file",
			configure: func(c *config.Config) {
				c.ReplySource = config.ReplySourceFile
				c.ReplyFile = path
			},
			wantType:  &filesystem.Source{},
			wantReply: "from file",
		},
		{
			name: "kubernetes",
			configure: func(c *config.Config) {
				c.ReplySource = config.ReplySourceKubernetes
				c.Namespace = "apps"
				c.ReplyConfigMap = "ackd"
			},
			wantType:  &kubernetes.ConfigMapSource{},
			wantReply: "from configmap",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.configure(cfg)

			source, err := NewReplySourceFactory(cfg).WithClientset(clientset).Create(ctx)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if got, want := fmt.Sprintf("%T", source), fmt.Sprintf("%T", tt.wantType); got != want {
				t.Errorf("got %s, want %s", got, want)
			}
			reply, err := source.Reply(ctx)
			if err != nil || string(reply) != tt.wantReply {
				t.Errorf("Reply() = %q, %v", reply, err)
			}
		})
	}
}

func TestReplySourceFactoryUnknown(t *testing.T) {
	cfg := testConfig()
	cfg.ReplySource = "s3"
	if _, err := NewReplySourceFactory(cfg).Create(testContext(t)); err == nil {
		t.Fatal("expected an error")
	}
}

func TestEnsureReply(t *testing.T) {
	ctx := testContext(t)

	t.Run("present", func(t *testing.T) {
		cfg := testConfig()
		if err := NewReplySourceFactory(cfg).EnsureReply(ctx, memory.NewSource("x")); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("missing without auto create", func(t *testing.T) {
		cfg := testConfig()
		source := filesystem.NewSource(filepath.Join(t.TempDir(), "missing.txt"))
		err := NewReplySourceFactory(cfg).EnsureReply(ctx, source)
		if err == nil || !strings.Contains(err.Error(), "REPLY_AUTO_CREATE=false") {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("seeds file", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReplyAutoCreate = true
		cfg.ReplyText = "seeded"
		path := filepath.Join(t.TempDir(), "reply.txt")

		if err := NewReplySourceFactory(cfg).EnsureReply(ctx, filesystem.NewSource(path)); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil || string(data) != "seeded" {
			t.Errorf("file = %q, %v", data, err)
		}
	})

	t.Run("seeds configmap", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReplyAutoCreate = true
		cfg.ReplySource = config.ReplySourceKubernetes
		cfg.Namespace = "apps"
		cfg.ReplyConfigMap = "ackd"
		clientset := fake.NewSimpleClientset()

		f := NewReplySourceFactory(cfg).WithClientset(clientset)
		source, err := f.Create(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.EnsureReply(ctx, source); err != nil {
			t.Fatal(err)
		}
		cm, err := clientset.CoreV1().ConfigMaps("apps").Get(ctx, "ackd", metav1.GetOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if cm.Data["reply"] != core.DefaultReply {
			t.Errorf("configmap reply = %q", cm.Data["reply"])
		}
	})

	t.Run("unwritable", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReplyAutoCreate = true
		source := filesystem.NewSource(filepath.Join(t.TempDir(), "no", "such", "dir", "reply.txt"))
		if err := NewReplySourceFactory(cfg).EnsureReply(ctx, source); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestHandlerFactoryCreate(t *testing.T) {
	tests := []struct {
		name    string
		mode    config.ReplyMode
		framing frame.Mode
		send    []byte
		want    string
	}{
		{name: "fixed line", mode: config.ReplyModeFixed, framing: frame.ModeLine, send: []byte("hello\n"), want: core.DefaultReply},
		{name: "echo length", mode: config.ReplyModeEcho, framing: frame.ModeLength, send: []byte{0, 3, 'a', 'b', 'c'}, want: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ReplyMode = tt.mode
			cfg.Framing = tt.framing
			log := slog.New(slog.NewTextHandler(io.Discard, nil))
			var diag bytes.Buffer

			h, err := NewHandlerFactory(cfg).Create(memory.NewSource(cfg.ReplyText), errs.NewReporter("ackd", log, &diag), stats.New(0), log)
			if err != nil {
				t.Fatal(err)
			}

			client, server := net.Pipe()
			defer client.Close()
			go h.HandleConnection(context.Background(), &core.ClientConnection{Conn: server, ID: 1, AcceptedAt: time.Now()})

			client.SetDeadline(time.Now().Add(5 * time.Second))
			if _, err := client.Write(tt.send); err != nil {
				t.Fatal(err)
			}
			got, err := io.ReadAll(client)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandlerFactoryErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Framing = "xml"
	if _, err := NewHandlerFactory(cfg).Create(memory.NewSource("x"), nil, nil, nil); err == nil {
		t.Error("expected framing error")
	}

	cfg = testConfig()
	if _, err := NewHandlerFactory(cfg).Create(nil, nil, nil, nil); err == nil {
		t.Error("expected an error for fixed mode without a source")
	}
}
