package mongo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homespot/identity-service/internal/core/domain"
)

const (
	accountCollection = "accounts"
	roleCollection    = "roles"

	purposeTokenTTL = 24 * time.Hour
)

// MongoAccountRepository is the credential store over the accounts and roles
// collections. Purpose tokens are this store's built-in capability: HMAC-SHA256
// keyed by the server secret plus the account's security stamp, so rotating
// the stamp (password change) invalidates every outstanding token.
type MongoAccountRepository struct {
	accounts *mongo.Collection
	roles    *mongo.Collection
	secret   string
}

func NewAccountRepository(db *mongo.Database, secret string) *MongoAccountRepository {
	return &MongoAccountRepository{
		accounts: db.Collection(accountCollection),
		roles:    db.Collection(roleCollection),
		secret:   secret,
	}
}

type profileDoc struct {
	FirstName   string     `bson:"first_name,omitempty"`
	LastName    string     `bson:"last_name,omitempty"`
	Address     string     `bson:"address,omitempty"`
	Gender      string     `bson:"gender,omitempty"`
	DateOfBirth *time.Time `bson:"date_of_birth,omitempty"`
	Avatar      []byte     `bson:"avatar,omitempty"`
}

type accountDoc struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Username          string             `bson:"username"`
	Email             string             `bson:"email"`
	PasswordHash      string             `bson:"password_hash"`
	EmailConfirmed    bool               `bson:"email_confirmed"`
	FailedAccessCount int                `bson:"failed_access_count"`
	LockoutEndUTC     *time.Time         `bson:"lockout_end_utc,omitempty"`
	SecurityStamp     string             `bson:"security_stamp"`
	PhoneNumber       string             `bson:"phone_number,omitempty"`
	Roles             []string           `bson:"roles,omitempty"`
	Profile           profileDoc         `bson:"profile"`
	CreatedAt         int64              `bson:"created_at"`
	UpdatedAt         int64              `bson:"updated_at"`
}

// EnsureIndexes creates the unique username index. Email is deliberately not
// unique: the same email may back one account per role.
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("accounts indexes: %w", err)
	}
	_, err = r.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("roles indexes: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) FindByEmail(ctx context.Context, email string) ([]*domain.Account, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.accounts.Find(ctx, bson.M{"email": email}, opts)
	if err != nil {
		return nil, fmt.Errorf("find accounts by email: %w", err)
	}
	defer cur.Close(ctx)

	var accounts []*domain.Account
	for cur.Next(ctx) {
		var doc accountDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		accounts = append(accounts, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

func (r *MongoAccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var doc accountDoc
	if err := r.accounts.FindOne(ctx, bson.M{"username": username}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNoSuchUser
		}
		return nil, fmt.Errorf("find account by username: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MongoAccountRepository) Create(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	doc := fromDomain(acc)
	res, err := r.accounts.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateUsername
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	created := *acc
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		created.ID = oid.Hex()
	}
	return &created, nil
}

func (r *MongoAccountRepository) Update(ctx context.Context, acc *domain.Account) error {
	oid, err := primitive.ObjectIDFromHex(acc.ID)
	if err != nil {
		return fmt.Errorf("update account: bad id: %w", err)
	}

	update := bson.M{"$set": bson.M{
		"email_confirmed":     acc.EmailConfirmed,
		"failed_access_count": acc.FailedAccessCount,
		"lockout_end_utc":     acc.LockoutEndUTC,
		"phone_number":        acc.PhoneNumber,
		"profile":             profileFromDomain(acc.Profile),
		"updated_at":          time.Now().UTC().Unix(),
	}}
	res, err := r.accounts.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNoSuchUser
	}
	return nil
}

// UpdatePassword stores the new hash and rotates the security stamp so every
// previously issued purpose token stops verifying.
func (r *MongoAccountRepository) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	oid, err := primitive.ObjectIDFromHex(accountID)
	if err != nil {
		return fmt.Errorf("update password: bad id: %w", err)
	}

	update := bson.M{"$set": bson.M{
		"password_hash":  passwordHash,
		"security_stamp": uuid.NewString(),
		"updated_at":     time.Now().UTC().Unix(),
	}}
	res, err := r.accounts.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNoSuchUser
	}
	return nil
}

func (r *MongoAccountRepository) EnsureRole(ctx context.Context, role string) error {
	opts := options.Update().SetUpsert(true)
	_, err := r.roles.UpdateOne(ctx, bson.M{"name": role}, bson.M{"$setOnInsert": bson.M{"name": role}}, opts)
	if err != nil {
		return fmt.Errorf("ensure role: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) AssignRole(ctx context.Context, accountID, role string) error {
	oid, err := primitive.ObjectIDFromHex(accountID)
	if err != nil {
		return fmt.Errorf("assign role: bad id: %w", err)
	}

	res, err := r.accounts.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$addToSet": bson.M{"roles": role}})
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNoSuchUser
	}
	return nil
}

// GeneratePurposeToken mints an opaque token of the form
// accountID|purpose|expiry|nonce|signature. Callers encode it for transport.
func (r *MongoAccountRepository) GeneratePurposeToken(_ context.Context, acc *domain.Account, purpose domain.TokenPurpose) (string, error) {
	expiry := time.Now().UTC().Add(purposeTokenTTL).Unix()
	nonce := uuid.NewString()
	payload := fmt.Sprintf("%s|%s|%d|%s", acc.ID, purpose, expiry, nonce)
	return payload + "|" + r.sign(payload, acc.SecurityStamp), nil
}

// VerifyPurposeToken recomputes the signature with the account's current
// security stamp and checks binding and lifetime. It never reports why a
// token failed, only that it did.
func (r *MongoAccountRepository) VerifyPurposeToken(_ context.Context, acc *domain.Account, purpose domain.TokenPurpose, token string) (bool, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 5 {
		return false, nil
	}
	payload := strings.Join(parts[:4], "|")
	if !hmac.Equal([]byte(parts[4]), []byte(r.sign(payload, acc.SecurityStamp))) {
		return false, nil
	}
	if parts[0] != acc.ID || parts[1] != string(purpose) {
		return false, nil
	}
	expiry, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return false, nil
	}
	return time.Now().UTC().Unix() <= expiry, nil
}

func (r *MongoAccountRepository) sign(payload, stamp string) string {
	mac := hmac.New(sha256.New, []byte(r.secret+stamp))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func fromDomain(acc *domain.Account) accountDoc {
	return accountDoc{
		Username:          acc.Username,
		Email:             acc.Email,
		PasswordHash:      acc.PasswordHash,
		EmailConfirmed:    acc.EmailConfirmed,
		FailedAccessCount: acc.FailedAccessCount,
		LockoutEndUTC:     acc.LockoutEndUTC,
		SecurityStamp:     acc.SecurityStamp,
		PhoneNumber:       acc.PhoneNumber,
		Roles:             acc.Roles,
		Profile:           profileFromDomain(acc.Profile),
		CreatedAt:         acc.CreatedAt.Unix(),
		UpdatedAt:         acc.UpdatedAt.Unix(),
	}
}

func profileFromDomain(p domain.Profile) profileDoc {
	return profileDoc{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Address:     p.Address,
		Gender:      p.Gender,
		DateOfBirth: p.DateOfBirth,
		Avatar:      p.Avatar,
	}
}

func (d accountDoc) toDomain() *domain.Account {
	return &domain.Account{
		ID:                d.ID.Hex(),
		Username:          d.Username,
		Email:             d.Email,
		PasswordHash:      d.PasswordHash,
		EmailConfirmed:    d.EmailConfirmed,
		FailedAccessCount: d.FailedAccessCount,
		LockoutEndUTC:     d.LockoutEndUTC,
		SecurityStamp:     d.SecurityStamp,
		PhoneNumber:       d.PhoneNumber,
		Roles:             d.Roles,
		Profile: domain.Profile{
			FirstName:   d.Profile.FirstName,
			LastName:    d.Profile.LastName,
			Address:     d.Profile.Address,
			Gender:      d.Profile.Gender,
			DateOfBirth: d.Profile.DateOfBirth,
			Avatar:      d.Profile.Avatar,
		},
		CreatedAt: unixToTime(d.CreatedAt),
		UpdatedAt: unixToTime(d.UpdatedAt),
	}
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
