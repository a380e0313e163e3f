package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("debug", "json", &buf)
	LogError(logger, "service", "lock_sale", logrus.Fields{"sale_id": "sale-1"}, errors.New("boom"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["module"] != "service" || line["operation"] != "lock_sale" || line["sale_id"] != "sale-1" {
		t.Fatalf("missing fields in %v", line)
	}
	if line["msg"] != "boom" || line["level"] != "error" {
		t.Fatalf("unexpected message or level in %v", line)
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("chatty", "text", &buf)
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", logger.GetLevel())
	}
	logger.Debug("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line should be filtered")
	}
}
