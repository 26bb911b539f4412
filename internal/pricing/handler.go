package pricing

import (
	"context"
	"net/http"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/http/respond"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// Writer persists a new configuration.
type Writer interface {
	Set(ctx context.Context, cfg Config) error
}

// Handler serves the admin pricing endpoints. Percentages and amounts travel
// as decimal strings ("15.00", "25.00").
type Handler struct {
	provider *Provider
	writer   Writer
	logger   *logging.Logger
}

func NewHandler(provider *Provider, writer Writer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{provider: provider, writer: writer, logger: logger}
}

type configView struct {
	PlatformFeePercent     string `json:"platformFeePercent"`
	BankTransferFeePercent string `json:"bankTransferFeePercent"`
	MinimumWithdrawal      string `json:"minimumWithdrawal"`
	MaximumWithdrawal      string `json:"maximumWithdrawal"`
}

func viewOf(cfg Config) configView {
	return configView{
		PlatformFeePercent:     money.BpsToPercent(cfg.PlatformFeeBps),
		BankTransferFeePercent: money.BpsToPercent(cfg.BankTransferFeeBps),
		MinimumWithdrawal:      cfg.MinWithdrawal.String(),
		MaximumWithdrawal:      cfg.MaxWithdrawal.String(),
	}
}

func (v configView) config() (Config, error) {
	var (
		cfg Config
		err error
	)
	if cfg.PlatformFeeBps, err = money.PercentToBps(v.PlatformFeePercent); err != nil {
		return Config{}, err
	}
	if cfg.BankTransferFeeBps, err = money.PercentToBps(v.BankTransferFeePercent); err != nil {
		return Config{}, err
	}
	if cfg.MinWithdrawal, err = money.FromDecimalString(v.MinimumWithdrawal); err != nil {
		return Config{}, err
	}
	if cfg.MaxWithdrawal, err = money.FromDecimalString(v.MaximumWithdrawal); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Get handles GET /admin/pricing.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, viewOf(h.provider.Snapshot()))
}

// Put handles PUT /admin/pricing.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		respond.Error(w, h.logger, apperr.InvalidState("pricing_read_only", "pricing configuration store is not writable"))
		return
	}
	var view configView
	if err := respond.Decode(r, &view); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	cfg, err := view.config()
	if err != nil {
		respond.Error(w, h.logger, apperr.Validation("invalid_pricing", "%v", err))
		return
	}
	if err := h.writer.Set(r.Context(), cfg); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if err := h.provider.Refresh(r.Context()); err != nil {
		h.logger.Warn("pricing refresh after update failed", "error", err)
	}
	h.logger.Info("pricing configuration updated",
		"platform_fee_percent", money.BpsToPercent(cfg.PlatformFeeBps),
		"min_withdrawal_cents", int64(cfg.MinWithdrawal))
	respond.JSON(w, http.StatusOK, viewOf(h.provider.Snapshot()))
}
