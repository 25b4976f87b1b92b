package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-ebics/pkg/identity"
)

func initCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate subscriber keys and store the subscriber",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.client.CreateUser(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Subscriber %s/%s created at %s.\n", id.User.PartnerID, id.User.UserID, id.Bank.HostID)
			fmt.Fprintf(out, "%s %s\n", id.User.SignatureKey.Version, hex.EncodeToString(id.User.SignatureKey.Digest))
			fmt.Fprintf(out, "%s %s\n", id.User.AuthenticationKey.Version, hex.EncodeToString(id.User.AuthenticationKey.Digest))
			fmt.Fprintf(out, "%s %s\n", id.User.EncryptionKey.Version, hex.EncodeToString(id.User.EncryptionKey.Digest))
			return nil
		},
	}
}

func statusStep(use, short string, step func(a *app, ctx context.Context) (identity.UserStatus, error)) func(a *app) *cobra.Command {
	return func(a *app) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				status, err := step(a, cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscriber status: %s\n", status)
				return nil
			},
		}
	}
}

var (
	iniCmd = statusStep("ini", "Send the signature public key", func(a *app, ctx context.Context) (identity.UserStatus, error) {
		return a.client.INI(ctx)
	})
	hiaCmd = statusStep("hia", "Send the authentication and encryption public keys", func(a *app, ctx context.Context) (identity.UserStatus, error) {
		return a.client.HIA(ctx)
	})
	sprCmd = statusStep("spr", "Suspend the subscriber at the bank", func(a *app, ctx context.Context) (identity.UserStatus, error) {
		return a.client.SPR(ctx)
	})
)

func hpbCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hpb",
		Short: "Download and store the bank public keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bank, err := a.client.HPB(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Bank keys of %s stored. Compare with the bank letter:\n", bank.HostID)
			fmt.Fprintf(out, "%s %s\n", bank.AuthenticationKey.Version, hex.EncodeToString(bank.AuthenticationKey.Digest))
			fmt.Fprintf(out, "%s %s\n", bank.EncryptionKey.Version, hex.EncodeToString(bank.EncryptionKey.Digest))
			return nil
		},
	}
}

func hevCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hev",
		Short: "List the protocol versions supported by the bank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hev, err := a.client.HEV(cmd.Context())
			if err != nil {
				return err
			}
			for _, v := range hev.Versions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", v.ProtocolVersion, v.Value)
			}
			return nil
		},
	}
}

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the subscriber state and unfinished transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Host:      %s\n", st.HostID)
			fmt.Fprintf(out, "Partner:   %s\n", st.PartnerID)
			fmt.Fprintf(out, "User:      %s\n", st.UserID)
			fmt.Fprintf(out, "Status:    %s\n", st.UserStatus)
			fmt.Fprintf(out, "Bank keys: %t\n", st.BankKeys)

			versions := make([]string, 0, len(st.Digests))
			for v := range st.Digests {
				versions = append(versions, v)
			}
			sort.Strings(versions)
			for _, v := range versions {
				fmt.Fprintf(out, "%s %s\n", v, hex.EncodeToString(st.Digests[v]))
			}

			for _, tx := range st.Transactions {
				fmt.Fprintf(out, "Pending %s %s segment %d/%d phase %s",
					tx.OrderType, tx.TransactionID, tx.SegmentNumber, tx.NumSegments, tx.Phase)
				if tx.LastError != "" {
					fmt.Fprintf(out, ": %s", tx.LastError)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func resetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Return the subscriber to status NEW after a bank side reset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Subscriber reset.")
			return nil
		},
	}
}
