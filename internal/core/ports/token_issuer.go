package ports

import "time"

// TokenIssuer mints signed bearer tokens for authenticated sessions. Claims
// always carry the account id, the single role asserted for the session, and
// a fresh unique token id.
type TokenIssuer interface {
	IssueSessionToken(accountID, role string) (token string, expiresAt time.Time, err error)
}
