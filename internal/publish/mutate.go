package publish

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/redpen/contentsyncd/internal/logfields"
)

const (
	// AppConfigFile is the runtime-configuration asset injected into the site.
	AppConfigFile = "app-config.js"

	appConfigScriptTag = `  <script src="/app-config.js"></script>` + "\n</head>"

	// BootstrapScript is the editor bootstrap patched at publish time.
	BootstrapScript = "js/redpen-editor-bootstrap.js"

	bootstrapStub = "function apiBase(path){ return path; }"

	bootstrapReplacement = "function apiBase(path){ try { var c = (window.APP_CONFIG && window.APP_CONFIG.apiBaseUrl) ? String(window.APP_CONFIG.apiBaseUrl) : null; " +
		`if (c) { c = c.replace(/\/$/, ""); return c + path; } } catch(e) {} return path; }`
)

// Mutate applies the deterministic staging-tree mutations: write the runtime
// configuration asset, inject a reference to it into every HTML head exactly
// once and patch the bootstrap stub. Every mutation is idempotent, so
// publishing an already-mutated tree is a no-op.
func Mutate(stagingDir, apiBaseURL string) error {
	if err := writeAppConfig(stagingDir, apiBaseURL); err != nil {
		return err
	}
	if err := injectConfigScript(stagingDir); err != nil {
		return err
	}
	return patchBootstrap(stagingDir)
}

func writeAppConfig(stagingDir, apiBaseURL string) error {
	if apiBaseURL == "" {
		return nil
	}
	content := fmt.Sprintf("window.APP_CONFIG={apiBaseUrl:%q};", apiBaseURL)
	if err := os.WriteFile(filepath.Join(stagingDir, AppConfigFile), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", AppConfigFile, err)
	}
	return nil
}

// injectConfigScript ensures each HTML document references the configuration
// asset before </head>. Documents that already carry the reference, or have
// no head close tag, are left untouched. Unreadable files are skipped; they
// will be retried on the next publish.
func injectConfigScript(stagingDir string) error {
	return filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".html") {
			return nil //nolint:nilerr // walk errors skip the entry, not the mutation pass
		}

		data, readErr := os.ReadFile(path) // #nosec G304 - path comes from walking the staging tree
		if readErr != nil {
			slog.Warn("Skipping unreadable HTML file", logfields.Path(path), logfields.Error(readErr))
			return nil
		}

		if hasConfigScript(data) {
			return nil
		}

		updated := strings.Replace(string(data), "</head>", appConfigScriptTag, 1)
		if updated == string(data) {
			return nil
		}
		if writeErr := os.WriteFile(path, []byte(updated), 0o644); writeErr != nil {
			slog.Warn("Failed to inject config script", logfields.Path(path), logfields.Error(writeErr))
		}
		return nil
	})
}

// hasConfigScript parses the document and looks for a script element whose
// src references the configuration asset. Parsing instead of substring
// matching keeps the injection idempotent even when the page merely mentions
// the asset name in text.
func hasConfigScript(doc []byte) bool {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		// Unparseable documents are treated as already handled rather than
		// risking a duplicate injection on every cycle.
		return true
	}

	var found bool
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "script" {
			for _, attr := range n.Attr {
				if attr.Key == "src" && strings.Contains(attr.Val, AppConfigFile) {
					found = true
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return found
}

// patchBootstrap replaces the apiBase stub with the configuration-aware
// implementation, only when the stub is still present verbatim.
func patchBootstrap(stagingDir string) error {
	path := filepath.Join(stagingDir, filepath.FromSlash(BootstrapScript))
	data, err := os.ReadFile(path) // #nosec G304 - fixed path under the staging tree
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read bootstrap script: %w", err)
	}

	if !strings.Contains(string(data), bootstrapStub) {
		return nil
	}

	patched := strings.Replace(string(data), bootstrapStub, bootstrapReplacement, 1)
	if err := os.WriteFile(path, []byte(patched), 0o644); err != nil {
		return fmt.Errorf("patch bootstrap script: %w", err)
	}
	return nil
}
