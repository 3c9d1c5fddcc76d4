package keywrap

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"rubysec/internal/logging"
)

// fakeProtector stands in for the OS service: blobs are bound to an account
// secret and carry the description so tests can tell accounts apart.
type fakeProtector struct {
	account []byte
	fail    error
}

func newFakeProtector(account string) *fakeProtector {
	return &fakeProtector{account: []byte(account)}
}

func (p *fakeProtector) Protect(plain []byte, description string) ([]byte, error) {
	if p.fail != nil {
		return nil, p.fail
	}
	blob := append([]byte(p.account), ':')
	for i, b := range plain {
		blob = append(blob, b^p.account[i%len(p.account)])
	}
	return blob, nil
}

func (p *fakeProtector) Unprotect(blob []byte) ([]byte, error) {
	prefix := append([]byte(p.account), ':')
	if !bytes.HasPrefix(blob, prefix) {
		return nil, errors.New("blob belongs to another account")
	}
	body := blob[len(prefix):]
	plain := make([]byte, len(body))
	for i, b := range body {
		plain[i] = b ^ p.account[i%len(p.account)]
	}
	return plain, nil
}

func testLogger() *logging.Logger {
	return logging.New("keywrap-test", logging.LevelError)
}

func newTestPlatformWrapper(t *testing.T, protector Protector) (*PlatformWrapper, string) {
	t.Helper()
	sidecar := filepath.Join(t.TempDir(), "vault", ".dpapi_key")
	w, err := NewPlatformWrapper(protector, sidecar, testLogger())
	if err != nil {
		t.Fatalf("NewPlatformWrapper() error = %v", err)
	}
	return w, sidecar
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModePlatform, "platform"},
		{ModePassphrase, "passphrase"},
		{Mode(7), "mode(7)"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
		if tt.mode.Valid() != (tt.want != "mode(7)") {
			t.Errorf("Mode(%d).Valid() = %v", tt.mode, tt.mode.Valid())
		}
	}
}

func TestPlatformWrapper_GenerateCommitUnwrap(t *testing.T) {
	w, sidecar := newTestPlatformWrapper(t, newFakeProtector("alice"))

	key, err := w.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(key.Raw) != KeySize {
		t.Fatalf("raw key length = %d, want %d", len(key.Raw), KeySize)
	}

	if _, err := os.Stat(sidecar); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("sidecar should not exist before Commit, stat err = %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err := os.Stat(sidecar + pendingSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pending sidecar should be gone after Commit, stat err = %v", err)
	}

	raw, err := w.Unwrap(key.Material)
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if !bytes.Equal(raw, key.Raw) {
		t.Error("Unwrap() returned a different key")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(sidecar)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("sidecar permissions = %o, want 600", info.Mode().Perm())
		}
	}
}

func TestPlatformWrapper_CommitWithoutPendingIsNoop(t *testing.T) {
	w, _ := newTestPlatformWrapper(t, newFakeProtector("alice"))
	if err := w.Commit(); err != nil {
		t.Errorf("Commit() with nothing staged error = %v", err)
	}
}

func TestPlatformWrapper_SidecarMissing(t *testing.T) {
	w, _ := newTestPlatformWrapper(t, newFakeProtector("alice"))

	_, err := w.Unwrap(Material{1, 2, 3})
	if !errors.Is(err, ErrSidecarMissing) {
		t.Errorf("Unwrap() error = %v, want ErrSidecarMissing", err)
	}
}

func TestPlatformWrapper_FingerprintMismatch(t *testing.T) {
	w, sidecar := newTestPlatformWrapper(t, newFakeProtector("alice"))

	key, err := w.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(sidecar, []byte("alice:replaced-blob"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err = w.Unwrap(key.Material)
	if !errors.Is(err, ErrSidecarCorrupt) {
		t.Errorf("Unwrap() error = %v, want ErrSidecarCorrupt", err)
	}
}

func TestPlatformWrapper_OtherAccountCannotUnwrap(t *testing.T) {
	w, sidecar := newTestPlatformWrapper(t, newFakeProtector("alice"))

	key, err := w.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	other, err := NewPlatformWrapper(newFakeProtector("mallory"), sidecar, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	_, err = other.Unwrap(key.Material)
	if !errors.Is(err, ErrUnprotectFailed) {
		t.Errorf("Unwrap() error = %v, want ErrUnprotectFailed", err)
	}
}

func TestPlatformWrapper_RecoversStagedSidecar(t *testing.T) {
	w, sidecar := newTestPlatformWrapper(t, newFakeProtector("alice"))

	oldKey, err := w.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	// Rotation staged a new key and the vault was written, but the process
	// stopped before Commit.
	newKey, err := w.Generate()
	if err != nil {
		t.Fatal(err)
	}

	fresh, err := NewPlatformWrapper(newFakeProtector("alice"), sidecar, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	raw, err := fresh.Unwrap(newKey.Material)
	if err != nil {
		t.Fatalf("Unwrap(new material) error = %v", err)
	}
	if !bytes.Equal(raw, newKey.Raw) {
		t.Error("recovered key does not match staged key")
	}
	if _, err := os.Stat(sidecar + pendingSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("staged sidecar should have been promoted, stat err = %v", err)
	}

	// The old header no longer matches once the staged sidecar was promoted.
	if _, err := fresh.Unwrap(oldKey.Material); !errors.Is(err, ErrSidecarCorrupt) {
		t.Errorf("Unwrap(old material) error = %v, want ErrSidecarCorrupt", err)
	}
}

func TestPlatformWrapper_DiscardKeepsCommittedSidecar(t *testing.T) {
	w, sidecar := newTestPlatformWrapper(t, newFakeProtector("alice"))

	key, err := w.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Generate(); err != nil {
		t.Fatal(err)
	}
	w.Discard()

	if _, err := os.Stat(sidecar + pendingSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("staged sidecar should be removed by Discard, stat err = %v", err)
	}
	raw, err := w.Unwrap(key.Material)
	if err != nil {
		t.Fatalf("Unwrap() after Discard error = %v", err)
	}
	if !bytes.Equal(raw, key.Raw) {
		t.Error("committed key changed after Discard")
	}
}

func TestPlatformWrapper_ProtectFailure(t *testing.T) {
	p := newFakeProtector("alice")
	p.fail = errors.New("service stopped")
	w, _ := newTestPlatformWrapper(t, p)

	if _, err := w.Generate(); err == nil {
		t.Fatal("Generate() should fail when the protector fails")
	}
}

func TestNewPlatformWrapper_Validation(t *testing.T) {
	if _, err := NewPlatformWrapper(nil, "x", nil); !errors.Is(err, ErrPlatformUnavailable) {
		t.Errorf("nil protector error = %v, want ErrPlatformUnavailable", err)
	}
	if _, err := NewPlatformWrapper(newFakeProtector("a"), "", nil); err == nil {
		t.Error("empty sidecar path should be rejected")
	}
}

func TestPassphraseWrapper_RoundTrip(t *testing.T) {
	w := NewPassphraseWrapper([]byte("correct horse battery staple"))

	key, err := w.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(key.Raw) != KeySize {
		t.Fatalf("raw key length = %d, want %d", len(key.Raw), KeySize)
	}
	if key.Material == (Material{}) {
		t.Error("salt should not be all zero")
	}

	raw, err := w.Unwrap(key.Material)
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if !bytes.Equal(raw, key.Raw) {
		t.Error("derived key differs for the same salt")
	}

	wrong := NewPassphraseWrapper([]byte("tr0ub4dor&3"))
	other, err := wrong.Unwrap(key.Material)
	if err != nil {
		t.Fatalf("Unwrap() with other passphrase error = %v", err)
	}
	if bytes.Equal(other, key.Raw) {
		t.Error("different passphrases derived the same key")
	}
}

func TestPassphraseWrapper_Required(t *testing.T) {
	w := NewPassphraseWrapper(nil)

	if _, err := w.Generate(); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("Generate() error = %v, want ErrPassphraseRequired", err)
	}
	if _, err := w.Unwrap(Material{}); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("Unwrap() error = %v, want ErrPassphraseRequired", err)
	}
}

func TestPassphraseWrapper_Wipe(t *testing.T) {
	w := NewPassphraseWrapper([]byte("secret"))
	w.Wipe()
	if _, err := w.Unwrap(Material{}); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("Unwrap() after Wipe error = %v, want ErrPassphraseRequired", err)
	}
}

func TestForMode(t *testing.T) {
	opts := Options{
		Passphrase:  []byte("pw"),
		SidecarPath: filepath.Join(t.TempDir(), ".dpapi_key"),
		Protector:   newFakeProtector("alice"),
	}

	w, err := ForMode(ModePlatform, opts)
	if err != nil {
		t.Fatalf("ForMode(platform) error = %v", err)
	}
	if w.Mode() != ModePlatform {
		t.Errorf("Mode() = %s, want platform", w.Mode())
	}
	if _, ok := w.(Committer); !ok {
		t.Error("platform wrapper should implement Committer")
	}

	w, err = ForMode(ModePassphrase, opts)
	if err != nil {
		t.Fatalf("ForMode(passphrase) error = %v", err)
	}
	if w.Mode() != ModePassphrase {
		t.Errorf("Mode() = %s, want passphrase", w.Mode())
	}

	if _, err := ForMode(Mode(9), opts); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("ForMode(9) error = %v, want ErrUnknownMode", err)
	}
}

func TestForMode_PlatformUnavailable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("DPAPI is available on Windows")
	}
	_, err := ForMode(ModePlatform, Options{SidecarPath: filepath.Join(t.TempDir(), "k")})
	if !errors.Is(err, ErrPlatformUnavailable) {
		t.Errorf("ForMode(platform) error = %v, want ErrPlatformUnavailable", err)
	}
}

func TestPreferred(t *testing.T) {
	if got := Preferred(Options{Protector: newFakeProtector("a")}); got != ModePlatform {
		t.Errorf("Preferred(with protector) = %s, want platform", got)
	}

	want := ModePassphrase
	if runtime.GOOS == "windows" {
		want = ModePlatform
	}
	if got := Preferred(Options{}); got != want {
		t.Errorf("Preferred() = %s, want %s", got, want)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		want    Mode
		wantErr bool
	}{
		{"platform", ModePlatform, false},
		{"passphrase", ModePassphrase, false},
		{"auto", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.name, got, tt.want)
		}
		if err != nil && !errors.Is(err, ErrUnknownMode) {
			t.Errorf("ParseMode(%q) error = %v, want ErrUnknownMode", tt.name, err)
		}
	}
}
