package validators

import (
	"regexp"
	"strings"
	"sync"

	"crypto_signals_backend/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

var registerOnce sync.Once

// Register installs the custom binding tags on gin's validator engine.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterValidation("symbol", validateSymbol)
		v.RegisterValidation("signal_action", validateSignalAction)
	})
}

// NormalizeSymbol upper-cases a symbol and strips separators such as
// "BTC/USDT" or "BINANCE:BTCUSDT".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
	return s
}

// IsValidSymbol checks a normalized symbol
func IsValidSymbol(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

func validateSymbol(fl validator.FieldLevel) bool {
	return IsValidSymbol(NormalizeSymbol(fl.Field().String()))
}

func validateSignalAction(fl validator.FieldLevel) bool {
	_, ok := models.NormalizeAction(fl.Field().String())
	return ok
}
