package subgraph

import (
	"context"
	"encoding/json"
	"strconv"

	"defiwatch-telegram-bot/internal/types"

	"github.com/pkg/errors"
)

// positionQuery reads the aggregate state of one user's position. BigDecimal
// fields arrive as strings, following subgraph convention.
const positionQuery = `query ($user: ID!) {
  user(id: $user) {
    healthFactor
    totalCollateralUSD
    totalDebtUSD
    netAPY
  }
}`

// Positions resolves live position metrics through the cached subgraph
// client. Metric computation itself lives upstream — this adapter only
// extracts and derives the three widget values.
type Positions struct {
	client *Client
	scope  string
}

func NewPositions(client *Client, scope string) *Positions {
	return &Positions{client: client, scope: scope}
}

// GetMetric returns the current value of widget for ownerID. Fails with an
// UpstreamError when the position cannot be read. Monitor traffic is
// budgeted per owner so one busy user cannot starve the rest.
func (p *Positions) GetMetric(ctx context.Context, ownerID string, widget types.WidgetType) (float64, error) {
	vars, err := json.Marshal(map[string]string{"user": ownerID})
	if err != nil {
		return 0, errors.Wrap(err, "could not encode position query variables")
	}

	result, err := p.client.Query(ctx, "monitor:"+ownerID, QueryRequest{
		Scope:     p.scope,
		Query:     positionQuery,
		Variables: vars,
	})
	if err != nil {
		return 0, err
	}

	var data struct {
		User *struct {
			HealthFactor       string `json:"healthFactor"`
			TotalCollateralUSD string `json:"totalCollateralUSD"`
			TotalDebtUSD       string `json:"totalDebtUSD"`
			NetAPY             string `json:"netAPY"`
		} `json:"user"`
	}
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return 0, &types.UpstreamError{Msg: "could not decode position data", Err: err}
	}
	if data.User == nil {
		return 0, &types.UpstreamError{Msg: "position unavailable for owner " + ownerID}
	}

	switch widget {
	case types.WidgetHealthFactor:
		return parseDecimal(data.User.HealthFactor, "healthFactor")
	case types.WidgetLTV:
		collateral, err := parseDecimal(data.User.TotalCollateralUSD, "totalCollateralUSD")
		if err != nil {
			return 0, err
		}
		debt, err := parseDecimal(data.User.TotalDebtUSD, "totalDebtUSD")
		if err != nil {
			return 0, err
		}
		if collateral == 0 {
			return 0, nil
		}
		return debt / collateral, nil
	case types.WidgetNetAPY:
		return parseDecimal(data.User.NetAPY, "netAPY")
	}

	return 0, types.NewValidationError("unknown widget type: " + string(widget))
}

func parseDecimal(s, field string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &types.UpstreamError{Msg: "could not parse " + field, Err: err}
	}
	return v, nil
}
