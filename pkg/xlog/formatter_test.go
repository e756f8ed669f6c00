package xlog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func Test_NewDefaultFormatter_Logger(t *testing.T) {
	buf := new(bytes.Buffer)
	SetFormatter(NewDefaultFormatter(buf))

	logger := NewLogger("test", INFO)
	logger.Println("Hello World!")
	logger.Debugln("DO NOT PRINT THIS")

	txt := buf.String()
	if !strings.Contains(txt, "I | test: Hello World!") {
		t.Fatalf("unexpected log %q", txt)
	}
	if strings.Contains(txt, "DO NOT PRINT THIS") {
		t.Fatalf("unexpected log %q", txt)
	}
}

func Test_NewJSONFormatter_Logger(t *testing.T) {
	buf := new(bytes.Buffer)
	SetFormatter(NewJSONFormatter(buf))

	logger := NewLogger("test", INFO)
	logger.Print("Hello World!")
	logger.Debugln("DO NOT PRINT THIS")

	var l jsonFormat
	if err := json.NewDecoder(buf).Decode(&l); err != nil {
		t.Fatal(err)
	}
	if l.Pkg != "test" || l.Level != "I" || l.Log != "Hello World!" {
		t.Fatalf("unexpected log %+v", l)
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected trailing log %q", buf.String())
	}
}

func Test_SetGlobalMaxLogLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	SetFormatter(NewDefaultFormatter(buf))

	logger := NewLogger("test", DEBUG)
	logger.Println("Hello World!")
	if !logger.Enabled(DEBUG) {
		t.Fatal("DEBUG expected enabled")
	}

	SetGlobalMaxLogLevel(INFO)
	logger.Debugln("DO NOT PRINT THIS")
	if logger.Enabled(DEBUG) {
		t.Fatal("DEBUG expected disabled")
	}

	txt := buf.String()
	if !strings.Contains(txt, "Hello World!") {
		t.Fatalf("unexpected log %q", txt)
	}
	if strings.Contains(txt, "DO NOT PRINT THIS") {
		t.Fatalf("unexpected log %q", txt)
	}
	if lg, ok := GetLogger("test"); !ok || lg != logger {
		t.Fatalf("GetLogger expected %p, got %p (%v)", logger, lg, ok)
	}
}

func Test_NewDefaultFormatter_Logger_file(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "test.log")

	f, err := os.OpenFile(fpath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		t.Fatal(err)
	}
	SetFormatter(NewDefaultFormatter(f))

	logger := NewLogger("test", DEBUG)
	logger.Println("Hello World!")
	logger.Debugln("TEST")

	if err = f.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatal(err)
	}
	txt := string(b)
	if !strings.Contains(txt, "Hello World!") || !strings.Contains(txt, "D | test: TEST") {
		t.Fatalf("unexpected log %q", txt)
	}
}

func Test_ParseLogLevel(t *testing.T) {
	tests := []struct {
		s    string
		wLvl LogLevel
		wErr bool
	}{
		{"info", INFO, false},
		{"DEBUG", DEBUG, false},
		{" warn ", WARN, false},
		{"e", ERROR, false},
		{"critical", CRITICAL, false},
		{"verbose", INFO, true},
	}
	for i, tt := range tests {
		lvl, err := ParseLogLevel(tt.s)
		if (err != nil) != tt.wErr {
			t.Fatalf("#%d: error expected %v, got %v", i, tt.wErr, err)
		}
		if lvl != tt.wLvl {
			t.Fatalf("#%d: level expected %v, got %v", i, tt.wLvl, lvl)
		}
	}
}

func Test_NewFormatter(t *testing.T) {
	for _, name := range []string{"", "default", "json"} {
		if _, err := NewFormatter(name, new(bytes.Buffer)); err != nil {
			t.Fatalf("%q: unexpected error %v", name, err)
		}
	}
	if _, err := NewFormatter("xml", new(bytes.Buffer)); err == nil {
		t.Fatal("expected error for unknown formatter")
	}
}
