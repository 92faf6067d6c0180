package escrow

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/arunavo4/sol-sell-escrow/internal/config"
	"github.com/arunavo4/sol-sell-escrow/internal/events"
	"github.com/arunavo4/sol-sell-escrow/internal/models"
	"github.com/arunavo4/sol-sell-escrow/internal/repositories"
	"github.com/arunavo4/sol-sell-escrow/internal/web3"
)

type fakeStore struct {
	offers        map[uuid.UUID]*models.Offer
	statusWrites  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{offers: map[uuid.UUID]*models.Offer{}}
}

func (s *fakeStore) Create(_ context.Context, o *models.Offer) error {
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	clone := *o
	s.offers[o.ID] = &clone
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Offer, error) {
	o, ok := s.offers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *o
	return &clone, nil
}

func (s *fakeStore) GetByEscrowAddress(_ context.Context, escrowAddress string) (*models.Offer, error) {
	for _, o := range s.offers {
		if o.EscrowAddress == escrowAddress {
			clone := *o
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeStore) List(_ context.Context, _ repositories.OfferFilter) ([]models.Offer, error) {
	var out []models.Offer
	for _, o := range s.offers {
		out = append(out, *o)
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	o, ok := s.offers[id]
	if !ok {
		return pgx.ErrNoRows
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	s.statusWrites++
	return nil
}

func (s *fakeStore) add(o models.Offer) uuid.UUID {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	s.offers[o.ID] = &o
	return o.ID
}

type fakeChain struct {
	accounts    map[solana.PublicKey][]byte
	tokenStatus map[solana.PublicKey]web3.TokenAccountStatus
	submitted   []*solana.Transaction
	calls       int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		accounts:    map[solana.PublicKey][]byte{},
		tokenStatus: map[solana.PublicKey]web3.TokenAccountStatus{},
	}
}

func (c *fakeChain) GetAccountData(_ context.Context, addr solana.PublicKey) ([]byte, error) {
	c.calls++
	data, ok := c.accounts[addr]
	if !ok {
		return nil, web3.ErrAccountNotFound
	}
	return data, nil
}

func (c *fakeChain) CheckTokenAccount(_ context.Context, addr, _ solana.PublicKey) (web3.TokenAccountStatus, error) {
	c.calls++
	if st, ok := c.tokenStatus[addr]; ok {
		return st, nil
	}
	return web3.TokenAccountNotFound, nil
}

func (c *fakeChain) LatestBlockhash(_ context.Context) (solana.Hash, error) {
	c.calls++
	var h solana.Hash
	h[0] = 42
	return h, nil
}

func (c *fakeChain) SubmitTransaction(ctx context.Context, tx *solana.Transaction, signer web3.Signer) (solana.Signature, error) {
	c.calls++
	if err := signer.SignTransaction(ctx, tx); err != nil {
		return solana.Signature{}, err
	}
	c.submitted = append(c.submitted, tx)
	return solana.Signature{1}, nil
}

type fakePublisher struct {
	published []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.published = append(p.published, e)
	return nil
}

type rejectingSigner struct {
	key solana.PublicKey
}

func (s rejectingSigner) PublicKey() solana.PublicKey { return s.key }

func (s rejectingSigner) SignTransaction(context.Context, *solana.Transaction) error {
	return web3.ErrSignerRejected
}

func newTestService(t *testing.T, store *fakeStore, chain *fakeChain, pub *fakePublisher) *OfferService {
	t.Helper()
	cfg := &config.Config{
		EscrowProgramID: web3.DefaultEscrowProgramID,
		FeePercentage:   4,
	}
	svc, err := NewOfferService(store, chain, pub, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func instructionDiscriminator(method string) []byte {
	h := sha256.Sum256([]byte("global:" + method))
	return h[:8]
}

// programInstructions extracts the compiled instructions addressed to the
// escrow program, with their raw payloads.
func programInstructions(t *testing.T, tx *solana.Transaction) [][]byte {
	t.Helper()
	programID := solana.MustPublicKeyFromBase58(web3.DefaultEscrowProgramID)
	var out [][]byte
	for _, in := range tx.Message.Instructions {
		target, err := tx.Message.Program(in.ProgramIDIndex)
		if err != nil {
			t.Fatal(err)
		}
		if target.Equals(programID) {
			out = append(out, []byte(in.Data))
		}
	}
	return out
}

func TestRequestOffer(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	pub := &fakePublisher{}
	svc := newTestService(t, store, chain, pub)

	seller := solana.NewWallet()
	buyer := solana.NewWallet().PublicKey()
	nft := solana.NewWallet().PublicKey()

	offer, err := svc.RequestOffer(context.Background(), RequestOfferInput{
		BuyerAddress: buyer.String(),
		NFTAddress:   nft.String(),
		Amount:       "10.0",
	}, web3.NewLocalSigner(seller.PrivateKey))
	if err != nil {
		t.Fatal(err)
	}

	if offer.Status != models.OfferStatusRequested {
		t.Errorf("status = %s, want %s", offer.Status, models.OfferStatusRequested)
	}
	if offer.EscrowAddress == "" {
		t.Error("escrow address is empty")
	}
	if offer.OfferedAmount != "10.0" {
		t.Errorf("offered amount = %s, want 10.0", offer.OfferedAmount)
	}
	if _, err := store.GetByID(context.Background(), offer.ID); err != nil {
		t.Errorf("offer record not persisted: %v", err)
	}

	if len(chain.submitted) != 1 {
		t.Fatalf("submitted %d transactions, want 1", len(chain.submitted))
	}
	payloads := programInstructions(t, chain.submitted[0])
	if len(payloads) != 1 {
		t.Fatalf("got %d escrow program instructions, want exactly 1", len(payloads))
	}
	data := payloads[0]
	if len(data) != 24 {
		t.Fatalf("initialize payload is %d bytes, want 24", len(data))
	}
	if got := string(data[:8]); got != string(instructionDiscriminator("initialize_escrow")) {
		t.Error("payload is not an initialize_escrow instruction")
	}
	// 10.0 SOL offered at a 4% fee escrows 10.4 SOL.
	if got := binary.LittleEndian.Uint64(data[16:24]); got != 10_400_000_000 {
		t.Errorf("taker amount = %d lamports, want 10400000000", got)
	}
	if got := binary.LittleEndian.Uint64(data[8:16]); got != 1 {
		t.Errorf("initializer amount = %d, want 1", got)
	}

	if len(pub.published) != 1 || pub.published[0].Type != events.EventOfferStatusChanged {
		t.Errorf("published events = %+v, want one offer_status_changed", pub.published)
	}
}

func TestRequestOfferCreatesSellerPaymentAccountWhenMissing(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	svc := newTestService(t, store, chain, &fakePublisher{})

	seller := solana.NewWallet()
	sellerSOL, err := web3.AssociatedTokenAddress(seller.PublicKey(), solana.SolMint)
	if err != nil {
		t.Fatal(err)
	}

	request := func() *solana.Transaction {
		t.Helper()
		_, err := svc.RequestOffer(context.Background(), RequestOfferInput{
			BuyerAddress: solana.NewWallet().PublicKey().String(),
			NFTAddress:   solana.NewWallet().PublicKey().String(),
			Amount:       "1.5",
		}, web3.NewLocalSigner(seller.PrivateKey))
		if err != nil {
			t.Fatal(err)
		}
		return chain.submitted[len(chain.submitted)-1]
	}

	// Missing payment account: create-associated-account precedes initialize.
	tx := request()
	if len(tx.Message.Instructions) != 2 {
		t.Fatalf("got %d instructions, want 2", len(tx.Message.Instructions))
	}
	first, err := tx.Message.Program(tx.Message.Instructions[0].ProgramIDIndex)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equals(solana.SPLAssociatedTokenAccountProgramID) {
		t.Errorf("first instruction targets %s, want associated token program", first)
	}

	// Existing payment account: no create instruction.
	chain.tokenStatus[sellerSOL] = web3.TokenAccountExists
	tx = request()
	if len(tx.Message.Instructions) != 1 {
		t.Errorf("got %d instructions, want 1 when the payment account exists", len(tx.Message.Instructions))
	}
}

func TestRequestOfferRejectsBadInputBeforeIO(t *testing.T) {
	tests := []struct {
		name  string
		input RequestOfferInput
	}{
		{"too precise amount", RequestOfferInput{
			BuyerAddress: solana.NewWallet().PublicKey().String(),
			NFTAddress:   solana.NewWallet().PublicKey().String(),
			Amount:       "10.55",
		}},
		{"zero amount", RequestOfferInput{
			BuyerAddress: solana.NewWallet().PublicKey().String(),
			NFTAddress:   solana.NewWallet().PublicKey().String(),
			Amount:       "0",
		}},
		{"bad buyer address", RequestOfferInput{
			BuyerAddress: "not-a-key",
			NFTAddress:   solana.NewWallet().PublicKey().String(),
			Amount:       "1.0",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := newFakeChain()
			svc := newTestService(t, newFakeStore(), chain, &fakePublisher{})

			_, err := svc.RequestOffer(context.Background(), tt.input,
				web3.NewLocalSigner(solana.NewWallet().PrivateKey))

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if chain.calls != 0 {
				t.Errorf("chain was called %d times, want 0", chain.calls)
			}
		})
	}
}

func escrowAccountData(initializer, deposit, receive solana.PublicKey, takerAmount uint64) []byte {
	disc := sha256.Sum256([]byte("account:EscrowAccount"))
	data := make([]byte, 0, web3.EscrowAccountDataLen)
	data = append(data, disc[:8]...)
	data = append(data, initializer[:]...)
	data = append(data, deposit[:]...)
	data = append(data, receive[:]...)
	data = binary.LittleEndian.AppendUint64(data, 1)
	data = binary.LittleEndian.AppendUint64(data, takerAmount)
	return data
}

func seedRequestedOffer(store *fakeStore, chain *fakeChain, buyer, seller *solana.Wallet) (uuid.UUID, solana.PublicKey) {
	escrow := solana.NewWallet().PublicKey()
	nft := solana.NewWallet().PublicKey()
	deposit, _ := web3.AssociatedTokenAddress(seller.PublicKey(), nft)

	chain.accounts[escrow] = escrowAccountData(seller.PublicKey(), deposit, seller.PublicKey(), 10_400_000_000)

	id := store.add(models.Offer{
		BuyerAddress:  buyer.PublicKey().String(),
		SellerAddress: seller.PublicKey().String(),
		EscrowAddress: escrow.String(),
		NFTAddress:    nft.String(),
		OfferedAmount: "10.0",
		Status:        models.OfferStatusRequested,
	})
	return id, escrow
}

func TestAcceptOffer(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	pub := &fakePublisher{}
	svc := newTestService(t, store, chain, pub)

	buyer := solana.NewWallet()
	seller := solana.NewWallet()
	id, escrow := seedRequestedOffer(store, chain, buyer, seller)

	offer, err := svc.AcceptOffer(context.Background(), id, web3.NewLocalSigner(buyer.PrivateKey))
	if err != nil {
		t.Fatal(err)
	}
	if offer.Status != models.OfferStatusAccepted {
		t.Errorf("status = %s, want %s", offer.Status, models.OfferStatusAccepted)
	}
	stored, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.OfferStatusAccepted {
		t.Errorf("stored status = %s, want %s", stored.Status, models.OfferStatusAccepted)
	}

	if len(chain.submitted) != 1 {
		t.Fatalf("submitted %d transactions, want 1", len(chain.submitted))
	}
	tx := chain.submitted[0]
	payloads := programInstructions(t, tx)
	if len(payloads) != 1 {
		t.Fatalf("got %d escrow program instructions, want exactly 1", len(payloads))
	}
	if string(payloads[0]) != string(instructionDiscriminator("exchange")) {
		t.Error("submitted instruction is not exchange")
	}

	var referencesEscrow bool
	for _, key := range tx.Message.AccountKeys {
		if key.Equals(escrow) {
			referencesEscrow = true
		}
	}
	if !referencesEscrow {
		t.Error("exchange transaction does not reference the stored escrow account")
	}
}

func TestAcceptOfferRejectedWithoutChainCall(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{"canceled offer", models.OfferStatusCanceled},
		{"already accepted offer", models.OfferStatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			chain := newFakeChain()
			svc := newTestService(t, store, chain, &fakePublisher{})

			buyer := solana.NewWallet()
			id := store.add(models.Offer{
				BuyerAddress:  buyer.PublicKey().String(),
				SellerAddress: solana.NewWallet().PublicKey().String(),
				EscrowAddress: solana.NewWallet().PublicKey().String(),
				NFTAddress:    solana.NewWallet().PublicKey().String(),
				OfferedAmount: "10.0",
				Status:        tt.status,
			})

			_, err := svc.AcceptOffer(context.Background(), id, web3.NewLocalSigner(buyer.PrivateKey))

			var terr *TransitionError
			if !errors.As(err, &terr) {
				t.Fatalf("got %v, want TransitionError", err)
			}
			if chain.calls != 0 {
				t.Errorf("chain was called %d times, want 0", chain.calls)
			}
		})
	}
}

func TestAcceptOfferOnlyBuyer(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	svc := newTestService(t, store, chain, &fakePublisher{})

	buyer := solana.NewWallet()
	seller := solana.NewWallet()
	id, _ := seedRequestedOffer(store, chain, buyer, seller)

	_, err := svc.AcceptOffer(context.Background(), id, web3.NewLocalSigner(seller.PrivateKey))

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestCancelOffer(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	svc := newTestService(t, store, chain, &fakePublisher{})

	buyer := solana.NewWallet()
	seller := solana.NewWallet()
	id, _ := seedRequestedOffer(store, chain, buyer, seller)

	offer, err := svc.CancelOffer(context.Background(), id, web3.NewLocalSigner(seller.PrivateKey))
	if err != nil {
		t.Fatal(err)
	}
	if offer.Status != models.OfferStatusCanceled {
		t.Errorf("status = %s, want %s", offer.Status, models.OfferStatusCanceled)
	}

	payloads := programInstructions(t, chain.submitted[0])
	if len(payloads) != 1 || string(payloads[0]) != string(instructionDiscriminator("cancel_escrow")) {
		t.Error("submitted instruction is not cancel_escrow")
	}
}

func TestCancelOfferSignerRejectionLeavesOfferUntouched(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	pub := &fakePublisher{}
	svc := newTestService(t, store, chain, pub)

	buyer := solana.NewWallet()
	seller := solana.NewWallet()
	id, _ := seedRequestedOffer(store, chain, buyer, seller)

	_, err := svc.CancelOffer(context.Background(), id, rejectingSigner{key: seller.PublicKey()})
	if !errors.Is(err, web3.ErrSignerRejected) {
		t.Fatalf("got %v, want ErrSignerRejected", err)
	}

	stored, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.OfferStatusRequested {
		t.Errorf("status = %s, want unchanged %s", stored.Status, models.OfferStatusRequested)
	}
	if store.statusWrites != 0 {
		t.Errorf("status was written %d times, want 0", store.statusWrites)
	}
	if len(pub.published) != 0 {
		t.Errorf("published %d events, want 0", len(pub.published))
	}
}

func TestResolveEscrow(t *testing.T) {
	store := newFakeStore()
	chain := newFakeChain()
	svc := newTestService(t, store, chain, &fakePublisher{})

	buyer := solana.NewWallet()
	seller := solana.NewWallet()
	id, escrow := seedRequestedOffer(store, chain, buyer, seller)

	offer, err := svc.ResolveEscrow(context.Background(), escrow.String())
	if err != nil {
		t.Fatal(err)
	}
	if offer.ID != id {
		t.Errorf("resolved offer %s, want %s", offer.ID, id)
	}

	_, err = svc.ResolveEscrow(context.Background(), solana.NewWallet().PublicKey().String())
	if !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("unknown escrow: got %v, want ErrOfferNotFound", err)
	}

	_, err = svc.ResolveEscrow(context.Background(), "not-a-key")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("malformed address: got %v, want ValidationError", err)
	}
}

func TestOfferNotFound(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeChain(), &fakePublisher{})

	_, err := svc.GetOffer(context.Background(), uuid.New())
	if !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("got %v, want ErrOfferNotFound", err)
	}
}
