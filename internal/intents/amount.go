package intents

import (
	"fmt"
	"unicode/utf8"

	"github.com/angelmondragon/ticketpay-backend/internal/parties"
	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

const maxOrderNameLen = 100

// Quote is the server-side price of one payment flow for a listing.
type Quote struct {
	Amount    int64
	Currency  string
	OrderName string
}

// QuoteListing prices a listing for the requested flow. Recruiting parties
// take the ticket price plus a deposit; selling parties take their sale price.
func QuoteListing(listing parties.Listing, flow enums.FlowType, cfg config.PaymentConfig) (Quote, error) {
	currency := cfg.Currency
	if currency == "" {
		currency = "KRW"
	}
	switch flow {
	case enums.FlowTypeDeposit:
		if listing.Mode == enums.PartyModeSelling {
			return Quote{}, errNotPayable("selling parties cannot use the deposit flow")
		}
		if listing.TicketPrice < 0 {
			return Quote{}, errNotPayable("ticket price is invalid")
		}
		amount := listing.TicketPrice + cfg.DepositAmount
		if amount <= 0 {
			return Quote{}, errNotPayable("payment amount is invalid")
		}
		return Quote{Amount: amount, Currency: currency, OrderName: orderName(listing.Title, "deposit")}, nil
	case enums.FlowTypeFull:
		if listing.Mode != enums.PartyModeSelling {
			return Quote{}, errNotPayable("only selling parties can be purchased in full")
		}
		if listing.Price <= 0 {
			return Quote{}, errNotPayable("sale price is not set")
		}
		return Quote{Amount: listing.Price, Currency: currency, OrderName: orderName(listing.Title, "ticket")}, nil
	default:
		return Quote{}, errNotPayable(fmt.Sprintf("unsupported flow type %q", flow))
	}
}

func orderName(title, suffix string) string {
	name := fmt.Sprintf("%s %s", title, suffix)
	if utf8.RuneCountInString(name) <= maxOrderNameLen {
		return name
	}
	runes := []rune(name)
	return string(runes[:maxOrderNameLen])
}
