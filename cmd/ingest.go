////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
)

const eventsFlag = "events"

// ingestCmd replays an event file into the store.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Apply a JSON lines event file to the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString(eventsFlag)

		var r io.Reader = cmd.InOrStdin()
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return errors.Wrapf(err, "failed to open event file %q", path)
			}
			defer func() { _ = f.Close() }()
			r = f
		}

		em, closeFn, err := openEventModel()
		if err != nil {
			return err
		}
		defer closeFn()

		summary, err := ingest(r, em)
		if err != nil {
			return err
		}
		jww.INFO.Printf("Ingested %s: %s", path, summary)
		_, err = fmt.Fprintln(cmd.OutOrStdout(), summary)
		return err
	},
}

func init() {
	ingestCmd.Flags().StringP(eventsFlag, "e", "-",
		"JSON lines event file. By default, events are read from stdin.")
	rootCmd.AddCommand(ingestCmd)
}
