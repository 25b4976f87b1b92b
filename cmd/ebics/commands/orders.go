package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
)

type orderFlags struct {
	orderType string
	format    string
	country   string
	test      bool
	start     string
	end       string
}

func (f *orderFlags) params() (order.Params, error) {
	p := order.Params{FileFormat: f.format, CountryCode: f.country, Test: f.test}
	var err error
	if f.start != "" {
		if p.Start, err = time.Parse(time.DateOnly, f.start); err != nil {
			return p, fmt.Errorf("--start: %w", err)
		}
	}
	if f.end != "" {
		if p.End, err = time.Parse(time.DateOnly, f.end); err != nil {
			return p, fmt.Errorf("--end: %w", err)
		}
	}
	return p, nil
}

func printState(cmd *cobra.Command, state *transaction.State) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s transaction %s completed (%d segments).\n",
		state.OrderType, state.TransactionID, state.NumSegments)
}

func uploadCmd(a *app) *cobra.Command {
	f := &orderFlags{}
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload order data (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := f.params()
			if err != nil {
				return err
			}
			payload, err := readPayload(args[0])
			if err != nil {
				return err
			}
			state, err := a.client.Upload(cmd.Context(), f.orderType, params, payload)
			if err != nil {
				return err
			}
			printState(cmd, state)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.orderType, "order", "o", "", "order type, e.g. CCT or FUL")
	cmd.Flags().StringVar(&f.format, "format", "", "file format for FUL")
	cmd.Flags().StringVar(&f.country, "country", "", "country code for FUL")
	cmd.Flags().BoolVar(&f.test, "test", false, "mark FUL as test order")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func resumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume TRANSACTION FILE",
		Short: "Resume an interrupted upload with its original payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args[1])
			if err != nil {
				return err
			}
			state, err := a.client.ResumeUpload(cmd.Context(), args[0], payload)
			if err != nil {
				return err
			}
			printState(cmd, state)
			return nil
		},
	}
}

func downloadCmd(a *app) *cobra.Command {
	f := &orderFlags{}
	var output string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download order data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := f.params()
			if err != nil {
				return err
			}
			data, err := a.client.Download(cmd.Context(), f.orderType, params)
			if err != nil {
				return err
			}
			if data == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "No %s data available.\n", f.orderType)
				return nil
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o600)
		},
	}
	cmd.Flags().StringVarP(&f.orderType, "order", "o", "", "order type, e.g. C53 or FDL")
	cmd.Flags().StringVar(&f.format, "format", "", "file format for FDL")
	cmd.Flags().StringVar(&f.country, "country", "", "country code for FDL")
	cmd.Flags().StringVar(&f.start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&output, "output", "f", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}
