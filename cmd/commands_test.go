package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

const ordersCSV = `Order Date,Order ID,Customer,Product,Sales
2024-01-05,1,Ada,Mug,10
2024-01-20,2,Lin,Plate,30
2024-02-03,3,Ada,Mug,10
2024-02-10,4,Bo,Lamp,50
`

func writeOrders(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.csv")
	if err := os.WriteFile(path, []byte(ordersCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestAnalyzeCommandWritesJSON(t *testing.T) {
	in := writeOrders(t)
	out := filepath.Join(t.TempDir(), "analysis.json")

	stdout, err := execute(t, "analyze", in, "--heuristics-only", "--json", "-o", out)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(stdout, "✓ Wrote analysis to "+out) {
		t.Fatalf("unexpected stdout: %q", stdout)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	for _, want := range []string{`"classification"`, `"analysis"`, `"basic_stats"`, `"total_rows": 4`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("output missing %s:\n%s", want, b)
		}
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestRolesCommand(t *testing.T) {
	stdout, err := execute(t, "roles", "revenue")
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if !strings.Contains(stdout, "- sales: ") || strings.Contains(stdout, "- price: ") {
		t.Fatalf("expected only the sales role, got:\n%s", stdout)
	}
	if _, err := execute(t, "roles", "nonsense"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestModelsCommand(t *testing.T) {
	stdout, err := execute(t, "models")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if !strings.Contains(stdout, "openai/gpt-4o-mini") || !strings.Contains(stdout, "free/local") {
		t.Fatalf("unexpected models output:\n%s", stdout)
	}
}

func TestAskWithoutEmbeddingsFails(t *testing.T) {
	in := writeOrders(t)
	_, err := execute(t, "ask", in, "Which product sold best?", "--quiet")
	if err == nil {
		t.Fatal("expected ask to fail without an embedding provider")
	}
	if !strings.Contains(err.Error(), "provider not configured") {
		t.Fatalf("unexpected error: %v", err)
	}
}

type fakeServer struct {
	stopped chan struct{}
	once    sync.Once
}

func (f *fakeServer) Start() error {
	<-f.stopped
	return nil
}

func (f *fakeServer) Stop(ctx context.Context) error {
	f.once.Do(func() { close(f.stopped) })
	return nil
}

func TestRunServerStopsOnCancel(t *testing.T) {
	srv := &fakeServer{stopped: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv, time.Second, zap.NewNop()) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runServer did not return after cancel")
	}
}
