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

	"gitlab.com/elixxir/xxdk-eventstore/eventModel"
)

const (
	pubKeyFlag  = "pubkey"
	tokenFlag   = "token"
	codesetFlag = "codeset"
)

// selfCmd registers the local identity so that its messages are stored as
// outgoing.
var selfCmd = &cobra.Command{
	Use:   "self",
	Short: "Register the local identity in the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pubKeyStr, _ := cmd.Flags().GetString(pubKeyFlag)
		token, _ := cmd.Flags().GetUint32(tokenFlag)
		codeset, _ := cmd.Flags().GetUint8(codesetFlag)

		pubKey, err := eventModel.DecodeID(pubKeyStr)
		if err != nil {
			return errors.Wrap(err, "failed to decode public key")
		}

		em, closeFn, err := openEventModel()
		if err != nil {
			return err
		}
		defer closeFn()

		if err = em.EnsureSelf(pubKey, codeset, token); err != nil {
			return err
		}

		self, err := em.SelfConversation()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Self conversation: %s\n", self.ID)
		return err
	},
}

func init() {
	selfCmd.Flags().StringP(pubKeyFlag, "k", "",
		"Base64 encoded public key of the local identity.")
	selfCmd.Flags().Uint32P(tokenFlag, "t", 0, "DM token of the local identity.")
	selfCmd.Flags().Uint8(codesetFlag, 0, "Codeset version of the identity.")
	_ = selfCmd.MarkFlagRequired(pubKeyFlag)
	rootCmd.AddCommand(selfCmd)
}
