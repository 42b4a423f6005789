package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/SrirammananS/finday/internal/domain"
)

// translateAPIError maps a Sheets API failure onto the domain error
// taxonomy so every layer above classifies with errors.Is.
func translateAPIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", domain.ErrAuthExpired, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		case http.StatusNotFound, http.StatusBadRequest:
			// The Sheets API reports an unknown sheet in a range as a 400
			// "Unable to parse range", not a 404.
			return fmt.Errorf("%w: %v", domain.ErrTableMissing, err)
		}
		if apiErr.Code >= 500 {
			return fmt.Errorf("%w: %v", domain.ErrNetworkTransient, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domain.ErrNetworkTransient, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrNetworkTransient, err)
	}

	return err
}
