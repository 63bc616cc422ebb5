////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gitlab.com/elixxir/client/v4/bindings"
	"gitlab.com/elixxir/xxdk-eventstore/storage"
)

// versionCmd prints the event store and xxDK versions. If a database is
// configured, the versions it was last opened with are also printed.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the event store and xxDK versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Event store v%s\nxxDK v%s\n",
			storage.SEMVER, bindings.GetVersion())

		path := viper.GetString(dbFlag)
		if path == "" {
			return nil
		}

		store, err := storage.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		_, err = fmt.Fprintf(out, "Database %s last opened by event store "+
			"v%s and xxDK v%s\n", path, storage.GetOldStoreSemVersion(),
			storage.GetOldClientSemVersion())
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
