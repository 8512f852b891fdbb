package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vigil/internal/detect"
	"github.com/ppiankov/vigil/internal/model"
)

var detectOutJSON string

// detectCmd runs contradiction analysis offline over a claims file.
var detectCmd = &cobra.Command{
	Use:   "detect <claims.jsonl>",
	Short: "Run conflict detection over a claims file",
	Long: `Detect reads claims from a JSONL file (one claim per line, the same
format the monitor persists under data/claims/) and runs the contradiction
rules over them. Useful for replaying a session's claims offline.

Example:
  vigil detect data/claims/demo.jsonl
  vigil detect data/claims/demo.jsonl --json conflicts.json`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringVar(&detectOutJSON, "json", "", "write conflicts to this path instead of stdout")
}

func runDetect(cmd *cobra.Command, args []string) error {
	claims, skipped, err := readClaimsFile(args[0])
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Loaded %d claims (%d invalid lines skipped)\n", len(claims), skipped)
	}

	conflicts := detect.Detect(claims)

	out, err := json.MarshalIndent(conflicts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conflicts: %w", err)
	}

	if detectOutJSON != "" {
		if err := os.WriteFile(detectOutJSON, append(out, '\n'), 0o644); err != nil {
			return fmt.Errorf("write conflicts: %w", err)
		}
		fmt.Printf("Wrote %d conflicts: %s\n", len(conflicts), detectOutJSON)
		return nil
	}

	fmt.Println(string(out))
	return nil
}

func readClaimsFile(path string) ([]model.Claim, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open claims file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var claims []model.Claim
	skipped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c model.Claim
		if err := json.Unmarshal(line, &c); err != nil {
			skipped++
			continue
		}
		claims = append(claims, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read claims file: %w", err)
	}
	return claims, skipped, nil
}
