package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sachanni/salonhub-geocache/internal/domain"
)

var errNoResult = errors.New("no result")

func newGeocodeCmd(a *app) *cobra.Command {
	var (
		country string
		biasLat float64
		biasLng float64
	)
	cmd := &cobra.Command{
		Use:   "geocode <address>",
		Short: "Resolve an address through the cache",
		Example: `  geocachectl geocode "DLF Mall of India"
  geocachectl geocode "Connaught Place" --country IN --bias-lat 28.63 --bias-lng 77.21`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := domain.GeocodeOptions{CountryFilter: country}
			latSet, lngSet := cmd.Flags().Changed("bias-lat"), cmd.Flags().Changed("bias-lng")
			if latSet != lngSet {
				return errors.New("--bias-lat and --bias-lng go together")
			}
			if latSet {
				opts.BiasLat, opts.BiasLng = &biasLat, &biasLng
			}

			svc, st, err := a.service()
			if err != nil {
				return err
			}
			defer a.closeStores(st)

			res, ok := svc.Geocode(cmd.Context(), args[0], opts)
			if !ok {
				return fmt.Errorf("geocode %q: %w", args[0], errNoResult)
			}
			return a.printJSON(res)
		},
	}
	cmd.Flags().StringVar(&country, "country", "", "ISO 3166-1 alpha-2 country filter")
	cmd.Flags().Float64Var(&biasLat, "bias-lat", 0, "latitude to bias results toward")
	cmd.Flags().Float64Var(&biasLng, "bias-lng", 0, "longitude to bias results toward")
	return cmd
}

func newReverseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "reverse <lat> <lng>",
		Short:   "Resolve coordinates through the cache",
		Example: `  geocachectl reverse 28.6315 77.2167`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("parse latitude %q: %w", args[0], err)
			}
			lng, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("parse longitude %q: %w", args[1], err)
			}
			if !domain.IsValidCoordinate(lat, lng) {
				return fmt.Errorf("coordinates out of range: %s, %s", args[0], args[1])
			}

			svc, st, err := a.service()
			if err != nil {
				return err
			}
			defer a.closeStores(st)

			res, ok := svc.ReverseGeocode(cmd.Context(), lat, lng)
			if !ok {
				return fmt.Errorf("reverse %s,%s: %w", args[0], args[1], errNoResult)
			}
			return a.printJSON(res)
		},
	}
}
