package workflow

import (
	"context"
	"strings"
	"testing"
)

func TestExport_Text(t *testing.T) {
	c := NewController("s1", &stubDescriber{result: mouseResult()}, nil)
	c.SetImage(testImage)
	if err := c.Generate(context.Background()); err != nil {
		t.Fatal(err)
	}

	a, err := c.Export(ExportText)
	if err != nil {
		t.Fatalf("Expected export, got: %v", err)
	}
	if a.FileName != "product-description.txt" {
		t.Errorf("Unexpected file name %s", a.FileName)
	}
	if !strings.HasPrefix(a.ContentType, "text/plain") {
		t.Errorf("Unexpected content type %s", a.ContentType)
	}
	if string(a.Body) != mouseText {
		t.Errorf("Unexpected body %q", a.Body)
	}
}

func TestExport_BeforeGenerationIsEmpty(t *testing.T) {
	c := NewController("s1", &stubDescriber{}, nil)
	a, err := c.Export(ExportText)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Body) != 0 {
		t.Errorf("Expected empty export, got %q", a.Body)
	}
}

func TestExport_HTML(t *testing.T) {
	result := mouseResult()
	result.Title = "Mouse <Pro>"
	c := NewController("s1", &stubDescriber{result: result}, nil)
	c.SetImage(testImage)
	if err := c.Generate(context.Background()); err != nil {
		t.Fatal(err)
	}

	// render twice so the pooled buffer is reused
	for i := 0; i < 2; i++ {
		a, err := c.Export(ExportHTML)
		if err != nil {
			t.Fatalf("Expected export, got: %v", err)
		}
		body := string(a.Body)
		if a.FileName != "product-description.html" {
			t.Errorf("Unexpected file name %s", a.FileName)
		}
		for _, want := range []string{
			"<title>Mouse &lt;Pro&gt;</title>",
			"<h2>Short Description</h2>",
			"<h2>Key Features</h2>",
			"Ergonomic design.<br",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("Expected %q in export:\n%s", want, body)
			}
		}
		if strings.Count(body, "<html>") != 1 {
			t.Errorf("Expected a single document, got:\n%s", body)
		}
	}
}

func TestParseExportFormat(t *testing.T) {
	tests := map[string]ExportFormat{"": ExportText, "txt": ExportText, "TEXT": ExportText, "html": ExportHTML}
	for in, want := range tests {
		got, err := ParseExportFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseExportFormat(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParseExportFormat("pdf"); err == nil {
		t.Error("Expected pdf to be rejected")
	}
}
