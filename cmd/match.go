package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sketchmapper/sketchmapper/internal/model"
)

var matchFile string

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank reference locations for a sketch read from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("match"); err != nil {
			return err
		}

		shapes, err := readShapes(matchFile, cmd.InOrStdin())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m, err := initMatcher(st)
		if err != nil {
			return err
		}

		matches, err := m.Match(ctx, shapes)
		if err != nil {
			return err
		}
		return writeMatches(cmd.OutOrStdout(), matches)
	},
}

// readShapes decodes a JSON shape array from path, or from stdin when path is "-".
func readShapes(path string, stdin io.Reader) ([]model.Shape, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "open sketch %s", path)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	var shapes []model.Shape
	if err := json.NewDecoder(r).Decode(&shapes); err != nil {
		return nil, eris.Wrap(err, "decode sketch")
	}
	return shapes, nil
}

func writeMatches(w io.Writer, matches []model.Match) error {
	if matches == nil {
		matches = []model.Match{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(matches), "write matches")
}

func init() {
	matchCmd.Flags().StringVarP(&matchFile, "file", "f", "-", "sketch JSON file (- for stdin)")
	rootCmd.AddCommand(matchCmd)
}
