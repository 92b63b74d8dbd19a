package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/recycle"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp runs fn against an application without the HTTP server
func withApp(fn func(app *Application) error) error {
	app, err := loadApplication(false)
	if err != nil {
		return err
	}
	defer app.Stop()
	return fn(app)
}

func addLedgerCommands(root *cobra.Command) {
	root.AddCommand(newStationCmd())
	root.AddCommand(newRecordsCmd())
	root.AddCommand(newDisposeCmd())
	root.AddCommand(newJournalCmd())
}

func newStationCmd() *cobra.Command {
	stationCmd := &cobra.Command{
		Use:   "station",
		Short: "Manage recycling stations",
	}

	var (
		id, owner, name, description string
		lat, lon                     float64
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a recycling station",
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerAddr, err := utils.ParseAddress("owner", owner)
			if err != nil {
				return err
			}
			params := recycle.StationParams{
				Owner:       ownerAddr,
				Name:        name,
				Description: description,
				Latitude:    lat,
				Longitude:   lon,
			}
			if id != "" {
				stationID, err := utils.ParseAddress("id", id)
				if err != nil {
					return err
				}
				params.ID = &stationID
			}

			return withApp(func(app *Application) error {
				station, err := app.registry.CreateStation(cmd.Context(), params)
				if err != nil {
					return err
				}
				return printJSON(station)
			})
		},
	}
	createCmd.Flags().StringVar(&id, "id", "", "station address (generated when empty)")
	createCmd.Flags().StringVar(&owner, "owner", "", "owner address")
	createCmd.Flags().StringVar(&name, "name", "", "station name (at most 100 bytes)")
	createCmd.Flags().StringVar(&description, "description", "", "station description (at most 200 bytes)")
	createCmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	createCmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	createCmd.MarkFlagRequired("owner")

	var listOwner string
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stations",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.StationFilter{Limit: listLimit}
			if listOwner != "" {
				ownerAddr, err := utils.ParseAddress("owner", listOwner)
				if err != nil {
					return err
				}
				filter.Owner = &ownerAddr
			}
			return withApp(func(app *Application) error {
				stations, err := app.registry.ListStations(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return printJSON(stations)
			})
		},
	}
	listCmd.Flags().StringVar(&listOwner, "owner", "", "only stations of this owner")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum number of stations")

	var binary bool
	showCmd := &cobra.Command{
		Use:   "show <station>",
		Short: "Show a station",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stationID, err := utils.ParseAddress("station", args[0])
			if err != nil {
				return err
			}
			return withApp(func(app *Application) error {
				station, err := app.registry.GetStation(cmd.Context(), stationID)
				if err != nil {
					return err
				}
				if binary {
					data, err := models.EncodeStation(station)
					if err != nil {
						return err
					}
					fmt.Println(hex.EncodeToString(data))
					return nil
				}
				return printJSON(station)
			})
		},
	}
	showCmd.Flags().BoolVar(&binary, "binary", false, "print the fixed account layout as hex")

	stationCmd.AddCommand(createCmd, listCmd, showCmd)
	return stationCmd
}

func newRecordsCmd() *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect disposal receipts",
	}

	var station, user string
	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List receipts of a station or a user, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (station == "") == (user == "") {
				return fmt.Errorf("exactly one of --station or --user is required")
			}
			return withApp(func(app *Application) error {
				var records []*models.RecycleRecord
				var err error
				if station != "" {
					var addr common.Address
					if addr, err = utils.ParseAddress("station", station); err != nil {
						return err
					}
					records, err = app.ledger.StationActivity(cmd.Context(), addr, limit)
				} else {
					var addr common.Address
					if addr, err = utils.ParseAddress("user", user); err != nil {
						return err
					}
					records, err = app.ledger.UserRecords(cmd.Context(), addr, limit, offset)
				}
				if err != nil {
					return err
				}
				return printJSON(records)
			})
		},
	}
	listCmd.Flags().StringVar(&station, "station", "", "station address")
	listCmd.Flags().StringVar(&user, "user", "", "user address")
	listCmd.Flags().IntVar(&limit, "limit", recycle.DefaultActivityLimit, "maximum number of records")
	listCmd.Flags().IntVar(&offset, "offset", 0, "records to skip (user listing only)")

	recordsCmd.AddCommand(listCmd)
	return recordsCmd
}

func newDisposeCmd() *cobra.Command {
	var (
		station, user, sourceMint, sourceAccount string
		rewardMint, rewardAccount, reserve       string
		amount                                   uint64
		severity                                 uint8
	)

	disposeCmd := &cobra.Command{
		Use:   "dispose",
		Short: "Burn dead tokens at a station and pay the reward",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := recycle.DisposeRequest{Amount: amount, Severity: severity}

			fields := []struct {
				name     string
				value    string
				dst      *common.Address
				optional bool
			}{
				{"station", station, &req.Station, false},
				{"user", user, &req.User, false},
				{"source-mint", sourceMint, &req.SourceTokenType, false},
				{"source-account", sourceAccount, &req.SourceAccount, false},
				{"reward-account", rewardAccount, &req.UserRewardAccount, false},
				{"reward-mint", rewardMint, &req.RewardTokenType, true},
				{"reserve", reserve, &req.ReserveAccount, true},
			}
			for _, f := range fields {
				if f.optional && f.value == "" {
					continue
				}
				addr, err := utils.ParseAddress(f.name, f.value)
				if err != nil {
					return err
				}
				*f.dst = addr
			}

			return withApp(func(app *Application) error {
				record, err := app.ledger.DisposeDeadCoin(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(record)
			})
		},
	}

	flags := disposeCmd.Flags()
	flags.StringVar(&station, "station", "", "station address")
	flags.StringVar(&user, "user", "", "user address")
	flags.StringVar(&sourceMint, "source-mint", "", "mint of the dead token")
	flags.StringVar(&sourceAccount, "source-account", "", "user token account to burn from")
	flags.StringVar(&rewardAccount, "reward-account", "", "user account receiving the reward")
	flags.StringVar(&rewardMint, "reward-mint", "", "reward mint (defaults to ledger.reward_mint)")
	flags.StringVar(&reserve, "reserve", "", "reserve account (defaults to ledger.reserve_account)")
	flags.Uint64Var(&amount, "amount", 0, "amount to burn in base units")
	flags.Uint8Var(&severity, "severity", 0, "how dead the token is, 1-100")
	return disposeCmd
}

func newJournalCmd() *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and recover disposal journals",
	}

	var status string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List disposal journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *Application) error {
				var filter *models.JournalStatus
				if status != "" {
					s := models.JournalStatus(status)
					filter = &s
				}
				journals, err := app.ledger.Journals(cmd.Context(), filter, limit)
				if err != nil {
					return err
				}
				return printJSON(journals)
			})
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "pending, burned, transferred, committed, rolled_back or compensation_failed")
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")

	recoverCmd := &cobra.Command{
		Use:   "recover",
		Short: "Compensate disposals left unfinished by a crashed process",
		Long:  "Must not run while a server is serving disposals against the same database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *Application) error {
				report, err := app.ledger.RecoverOpenJournals(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <journal-id>",
		Short: "Show a journal entry and its reconciliation notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *Application) error {
				detail, err := app.ledger.Journal(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(detail)
			})
		},
	}

	var notesLimit int
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "List disposals that could not be rolled back automatically",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *Application) error {
				notes, err := app.ledger.ReconciliationNotes(cmd.Context(), notesLimit)
				if err != nil {
					return err
				}
				return printJSON(notes)
			})
		},
	}
	reconcileCmd.Flags().IntVar(&notesLimit, "limit", 50, "maximum number of entries")

	journalCmd.AddCommand(listCmd, showCmd, reconcileCmd, recoverCmd)
	return journalCmd
}
