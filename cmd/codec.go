////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gitlab.com/elixxir/xxdk-eventstore/codec"
)

const compressFlag = "compress"

// encodeCmd prints the wire form of the text.
var encodeCmd = &cobra.Command{
	Use:   "encode text",
	Short: "Encode message text for the wire",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		compress, _ := cmd.Flags().GetBool(compressFlag)
		_, err := fmt.Fprintln(cmd.OutOrStdout(), codec.Encode(args[0], compress))
		return err
	},
}

// decodeCmd prints the text of a wire payload.
var decodeCmd = &cobra.Command{
	Use:   "decode wire",
	Short: "Decode message text from the wire",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, ok := codec.Decode(args[0])
		if !ok {
			return errors.New("payload is not valid encoded text")
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	},
}

func init() {
	encodeCmd.Flags().BoolP(compressFlag, "c", false,
		"Compress the text before encoding it.")
	rootCmd.AddCommand(encodeCmd, decodeCmd)
}
