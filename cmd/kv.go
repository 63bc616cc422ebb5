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
	"github.com/spf13/viper"

	"gitlab.com/elixxir/xxdk-eventstore/remoteKV"
)

// kvCmd groups the commands that operate on the local key-value store.
var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Read and write the local key-value store",
}

var kvSetCmd = &cobra.Command{
	Use:   "set key value",
	Short: "Store a value under the next version of the key",
	Args:  cobra.ExactArgs(2),
	RunE: withKV(func(cmd *cobra.Command, kv *remoteKV.BoltKV, args []string) error {
		return kv.Set(args[0], []byte(args[1]))
	}),
}

var kvGetCmd = &cobra.Command{
	Use:   "get key",
	Short: "Print the value of the key",
	Args:  cobra.ExactArgs(1),
	RunE: withKV(func(cmd *cobra.Command, kv *remoteKV.BoltKV, args []string) error {
		w, err := remoteKV.NewKeyWatcher(kv, args[0], 0, true, nil)
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()
		return printKey(cmd.OutOrStdout(), w)
	}),
}

var kvDeleteCmd = &cobra.Command{
	Use:   "delete key",
	Short: "Delete the key",
	Args:  cobra.ExactArgs(1),
	RunE: withKV(func(cmd *cobra.Command, kv *remoteKV.BoltKV, args []string) error {
		return kv.Delete(args[0])
	}),
}

var kvListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all keys",
	Args:  cobra.NoArgs,
	RunE: withKV(func(cmd *cobra.Command, kv *remoteKV.BoltKV, _ []string) error {
		keys, err := kv.Keys()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err = fmt.Fprintln(cmd.OutOrStdout(), key); err != nil {
				return err
			}
		}
		return nil
	}),
}

// kvImportCmd stores an envelope written by another device, as a remote
// change, and prints the value seen by a watcher on the key.
var kvImportCmd = &cobra.Command{
	Use:   "import key file",
	Short: "Import a JSON envelope from another device",
	Args:  cobra.ExactArgs(2),
	RunE: withKV(func(cmd *cobra.Command, kv *remoteKV.BoltKV, args []string) error {
		envelope, err := os.ReadFile(args[1])
		if err != nil {
			return errors.Wrapf(err, "failed to read envelope %q", args[1])
		}

		w, err := remoteKV.NewKeyWatcher(kv, args[0], 0, false,
			func(key string, err error) {
				jww.ERROR.Printf("Invalid value for key %q: %+v", key, err)
			})
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()

		if err = kv.Import(args[0], envelope); err != nil {
			return err
		}
		return printKey(cmd.OutOrStdout(), w)
	}),
}

func init() {
	kvCmd.AddCommand(kvSetCmd, kvGetCmd, kvDeleteCmd, kvListCmd, kvImportCmd)
	rootCmd.AddCommand(kvCmd)
}

// withKV opens the configured key-value store for the duration of fn.
func withKV(fn func(cmd *cobra.Command, kv *remoteKV.BoltKV,
	args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		kv, err := remoteKV.OpenBoltKV(viper.GetString(kvFlag))
		if err != nil {
			return err
		}
		defer func() {
			if err := kv.Close(); err != nil {
				jww.ERROR.Printf("Failed to close key-value store: %+v", err)
			}
		}()
		return fn(cmd, kv, args)
	}
}

// printKey writes the current value of the watched key to w.
func printKey(w io.Writer, kw *remoteKV.KeyWatcher) error {
	if err := kw.Err(); err != nil {
		return err
	}
	e, ok := kw.Envelope()
	if !ok {
		return errors.WithMessage(remoteKV.ErrKeyNotFound, kw.Key())
	}
	_, err := fmt.Fprintf(w, "%s (version %d, %s)\n%s\n",
		kw.Key(), e.Version, e.Timestamp.Format("2006-01-02 15:04:05"), e.Data)
	return err
}
