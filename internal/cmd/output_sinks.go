package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waypointhq/waypoint/internal/output"
)

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

// sanitizeFilename turns a URL or free text into a lowercase file stem.
func sanitizeFilename(value string) string {
	clean := nonFilename.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	clean = strings.Trim(clean, "-.")
	if len(clean) > 120 {
		clean = strings.TrimRight(clean[:120], "-.")
	}
	if clean == "" {
		return "output"
	}
	return clean
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|markdown|json")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to a directory, one file per result")
	cmd.MarkFlagsMutuallyExclusive("out", "out-dir")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// outputPath returns the file rendered output should go to, or "" for
// stdout. name becomes the file stem under --out-dir.
func outputPath(cmd *cobra.Command, format output.Format, name string) (string, error) {
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return "", err
	}
	outDir, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return "", err
	}
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)

	switch {
	case outPath != "" && outDir != "":
		return "", fmt.Errorf("--out and --out-dir are mutually exclusive")
	case outDir != "":
		abs, err := filepath.Abs(outDir)
		if err != nil {
			return "", fmt.Errorf("resolve --out-dir: %w", err)
		}
		return filepath.Join(abs, sanitizeFilename(name)+"."+format.Extension()), nil
	case outPath == "-":
		return "", nil
	default:
		return outPath, nil
	}
}

// writeOutput prints rendered to stdout or, when an output flag is set,
// replaces the target file in one rename so a reader never sees a partial
// export.
func writeOutput(cmd *cobra.Command, format output.Format, name, rendered string) error {
	path, err := outputPath(cmd, format, name)
	if err != nil {
		return err
	}
	if path == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	}

	if err := writeFileAtomic(path, []byte(rendered+"\n")); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	// #nosec G301 -- export directories are user-owned
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	// #nosec G302 -- exports are meant to be shared
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace output file: %w", err)
	}
	return nil
}
