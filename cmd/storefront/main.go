package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ndunguloren96/ltronix-shop/internal/backend"
	"github.com/ndunguloren96/ltronix-shop/internal/domain"
	"github.com/ndunguloren96/ltronix-shop/internal/httpapi"
	"github.com/ndunguloren96/ltronix-shop/pkg/metrics"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	envFile    string
	backendURL string
	stateDB    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "storefront",
		Short:        "Ltronix shop storefront client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file merged into the environment")
	root.PersistentFlags().StringVar(&flags.backendURL, "backend-url", "", "shop backend base URL (overrides BACKEND_URL)")
	root.PersistentFlags().StringVar(&flags.stateDB, "state-db", "", "local state database (overrides STATE_DB_PATH)")

	root.AddCommand(
		newServeCmd(flags),
		newCartCmd(flags),
		newLoginCmd(flags),
		newLogoutCmd(flags),
		newSyncCmd(flags),
		newPayCmd(flags),
		newOrdersCmd(flags),
	)
	return root
}

func (f *rootFlags) config() *Config {
	cfg := loadConfig(f.envFile)
	if f.backendURL != "" {
		cfg.BackendURL = f.backendURL
	}
	if f.stateDB != "" {
		cfg.StateDBPath = f.stateDB
	}
	return cfg
}

// withApp builds the client, reconciles the cart with the stored session and
// runs fn.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, flags.config(), consoleNavigator{out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer a.Close()

	a.sync.Reconcile(ctx)
	return fn(ctx, a)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shopperError(err error) error {
	return errors.New(backend.Message(err))
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := flags.config()
			if port != "" {
				cfg.HTTPPort = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides HTTP_PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *Config) error {
	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	timeout := cfg.RequestTimeout
	router := httpapi.NewRouter(httpapi.Handlers{
		Session:  httpapi.NewSessionHandler(a.tokens, a.sync, a.views, timeout),
		Cart:     httpapi.NewCartHandler(a.cart, a.sync, a.client, a.tokens, a.guests, a.views, timeout),
		Checkout: httpapi.NewCheckoutHandler(a.orch, timeout),
		Orders:   httpapi.NewOrdersHandler(a.client, a.tokens, a.views, timeout),
		Sync:     a.sync,
		Metrics:  metrics.Handler(a.registry),
	}, timeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Storefront starting on :%s (backend %s)", cfg.HTTPPort, cfg.BackendURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func newCartCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show the cart",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(_ context.Context, a *app) error {
				return printCart(cmd.OutOrStdout(), a.cart.Snapshot())
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <product_id> [quantity]",
		Short: "Add a product to the cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			quantity := 1
			if len(args) == 2 {
				if quantity, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				creds := backend.ResolveCredentials(ctx, a.tokens, a.guests)
				product, err := a.client.GetProduct(ctx, creds, productID)
				if err != nil {
					return shopperError(err)
				}
				err = a.cart.Add(ctx, domain.CartItem{
					ProductID: product.ID,
					Name:      product.Name,
					UnitPrice: product.Price,
					Quantity:  quantity,
				})
				if err != nil {
					return err
				}
				pushCart(ctx, cmd.ErrOrStderr(), a)
				return printCart(cmd.OutOrStdout(), a.cart.Snapshot())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <product_id> <quantity>",
		Short: "Change the quantity of an item (0 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.cart.Update(ctx, productID, quantity); err != nil {
					return err
				}
				pushCart(ctx, cmd.ErrOrStderr(), a)
				return printCart(cmd.OutOrStdout(), a.cart.Snapshot())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				a.cart.Clear(ctx)
				pushCart(ctx, cmd.ErrOrStderr(), a)
				return printCart(cmd.OutOrStdout(), a.cart.Snapshot())
			})
		},
	})
	return cmd
}

// pushCart mirrors the cart for signed-in shoppers. A failure leaves the
// local change in place and is reported as a warning.
func pushCart(ctx context.Context, warn io.Writer, a *app) {
	if err := a.sync.Push(ctx); err != nil {
		fmt.Fprintf(warn, "Saved locally, not synced with the shop: %s\n", backend.Message(err))
	}
}

func printCart(out io.Writer, c domain.Cart) error {
	if c.IsEmpty() {
		_, err := fmt.Fprintln(out, "Your cart is empty.")
		return err
	}
	for _, item := range c.Items {
		fmt.Fprintf(out, "%4d  %-32s %3d x %10s = %10s\n",
			item.ProductID, item.Name, item.Quantity, item.UnitPrice.StringFixed(2), item.Subtotal().StringFixed(2))
	}
	_, err := fmt.Fprintf(out, "%d item(s), total KES %s\n", c.Count(), c.Total().StringFixed(2))
	return err
}

func newLoginCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login <access_token>",
		Short: "Sign in with a bearer token and merge the guest cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.tokens.SetToken(ctx, args[0]); err != nil {
					return fmt.Errorf("invalid token: %w", err)
				}
				result := a.sync.Reconcile(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in (cart %s).\n", result.Outcome)
				return printCart(cmd.OutOrStdout(), result.Cart)
			})
		},
	}
}

func newLogoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.tokens.ClearToken(ctx); err != nil {
					return err
				}
				a.sync.Logout(ctx)
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return err
			})
		},
	}
}

func newSyncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local cart with the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags.config(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.sync.Reconcile(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Cart %s.\n", result.Outcome)
			return printCart(cmd.OutOrStdout(), result.Cart)
		},
	}
}

func newPayCmd(flags *rootFlags) *cobra.Command {
	var (
		orderID int64
		phone   string
	)
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Pay for an order with an M-Pesa STK push and wait for the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				attempt, err := a.orch.Start(ctx, orderID, phone)
				if err != nil {
					return shopperError(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Check your phone and enter your M-Pesa PIN to complete the payment.")

				// The attempt ends by itself within the polling budget.
				out, err := attempt.Wait(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out.Message)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&orderID, "order", 0, "order id to pay for")
	cmd.Flags().StringVar(&phone, "phone", "", "M-Pesa phone number, e.g. 0712345678")
	_ = cmd.MarkFlagRequired("order")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newOrdersCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List your orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				sess := a.tokens.Current(ctx)
				if !sess.IsAuthenticated() {
					return errors.New("sign in to see your orders")
				}
				orders, err := a.client.ListOrders(ctx, backend.Credentials{Token: sess.Token})
				if err != nil {
					return shopperError(err)
				}
				return printJSON(cmd.OutOrStdout(), orders)
			})
		},
	}
}
