package shipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/stockroom/pkg/storage"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/rs/zerolog"
)

var errProductMissing = errors.New("product not found in tenant")

// location is where a product currently lives: the products collection, or
// embedded in member
type location struct {
	product *types.Product
	member  *types.Member
}

func locate(ctx context.Context, store storage.TenantStore, productID string) (*location, error) {
	p, err := store.GetProduct(ctx, productID)
	if err == nil {
		return &location{product: p}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	m, err := store.FindMemberByProduct(ctx, productID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("product %s: %w", productID, errProductMissing)
	}
	if err != nil {
		return nil, err
	}
	p, _ = m.Product(productID)
	return &location{product: p, member: m}, nil
}

func (l *location) memberEmail() string {
	if l.member == nil {
		return ""
	}
	return l.member.Email
}

// save writes the product back where it was found
func (l *location) save(ctx context.Context, store storage.TenantStore) error {
	if l.member != nil {
		return store.PutMember(ctx, l.member)
	}
	return store.PutProduct(ctx, l.product)
}

// detach removes the product from a member it was embedded in
func (l *location) detach(ctx context.Context, store storage.TenantStore) error {
	if l.member == nil {
		return nil
	}
	_, i := l.member.Product(l.product.ID)
	if i < 0 {
		return nil
	}
	l.member.Products = append(l.member.Products[:i], l.member.Products[i+1:]...)
	return store.PutMember(ctx, l.member)
}

// cascade runs one per-product step over every product of a shipment
type cascade struct {
	machine *Machine
	store   storage.TenantStore
	tenant  string
	sh      *types.Shipment
	now     time.Time
	logger  zerolog.Logger

	ctx    context.Context
	report CascadeReport
}

func (c *cascade) run(step func(productID string) error) {
	for _, id := range c.sh.Products {
		if err := c.ctx.Err(); err != nil {
			c.report.fail(id, err)
			continue
		}
		err := step(id)
		switch {
		case err == nil:
			c.report.succeed()
		case errors.Is(err, errProductMissing):
			c.logger.Warn().Str("product_id", id).Msg("Product referenced by shipment not found, skipping")
			c.report.skip()
		default:
			c.logger.Error().Err(err).Str("product_id", id).Msg("Product cascade failed")
			c.report.fail(id, err)
		}
	}
}

func (c *cascade) sync(p *types.Product, memberEmail string) error {
	if _, err := c.machine.indexer.SyncFromProduct(c.ctx, c.tenant, p, memberEmail); err != nil {
		return fmt.Errorf("index sync: %w", err)
	}
	return nil
}

// dispatch marks a product as travelling. Products leaving a warehouse get
// warehouse status IN_TRANSIT, which drops them from warehouse metrics.
func (c *cascade) dispatch(productID string) error {
	loc, err := locate(c.ctx, c.store, productID)
	if err != nil {
		return err
	}
	p := loc.product

	changed := false
	if p.Status != types.ProductStatusInTransit {
		p.Status = types.ProductStatusInTransit
		changed = true
	}
	if p.Location == types.LocationFPWarehouse && p.FPWarehouse != nil && p.FPWarehouse.Status == types.WarehouseStatusStored {
		p.FPWarehouse.Status = types.WarehouseStatusInTransit
		changed = true
	}
	if !changed {
		return nil
	}

	p.UpdatedAt = c.now
	if err := loc.save(c.ctx, c.store); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return c.sync(p, loc.memberEmail())
}

// receive relocates a product to the shipment destination
func (c *cascade) receive(productID string) error {
	dest := c.sh.Destination
	if dest == nil {
		return fmt.Errorf("shipment %s has no destination", c.sh.ID)
	}

	loc, err := locate(c.ctx, c.store, productID)
	if err != nil {
		return err
	}

	p := loc.product.Clone()
	p.UpdatedAt = c.now
	p.AssignedEmail = ""
	p.AssignedMember = ""
	p.OfficeID = ""
	p.FPWarehouse = nil

	switch dest.Kind {
	case types.EndpointEmployee:
		return c.receiveByMember(loc, p, dest.MemberEmail)

	case types.EndpointOurOffice:
		p.Location = types.LocationOurOffice
		p.Status = types.ProductStatusAvailable
		p.OfficeID = dest.OfficeID

	case types.EndpointFPWarehouse:
		p.Location = types.LocationFPWarehouse
		p.Status = types.ProductStatusAvailable
		p.FPWarehouse = &types.FPWarehouseRef{
			WarehouseID:          dest.WarehouseID,
			WarehouseCountryCode: dest.CountryCode,
			WarehouseName:        dest.Name,
			Status:               types.WarehouseStatusStored,
			AssignedAt:           c.now,
		}

	default:
		return fmt.Errorf("unknown destination kind %q", dest.Kind)
	}

	if err := c.store.PutProduct(c.ctx, p); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := loc.detach(c.ctx, c.store); err != nil {
		return fmt.Errorf("detach from member %s: %w", loc.member.Email, err)
	}
	return c.sync(p, "")
}

func (c *cascade) receiveByMember(loc *location, p *types.Product, email string) error {
	member, err := c.store.GetMemberByEmail(c.ctx, email)
	if err != nil {
		return fmt.Errorf("destination member %s: %w", email, err)
	}

	p.Location = types.LocationEmployee
	p.Status = types.ProductStatusDelivered
	p.AssignedEmail = member.Email
	p.AssignedMember = member.FullName()

	// Delivered to the member already holding it
	if loc.member != nil && loc.member.ID == member.ID {
		member = loc.member
	}
	if _, i := member.Product(p.ID); i >= 0 {
		member.Products[i] = p
	} else {
		member.Products = append(member.Products, p)
	}
	if err := c.store.PutMember(c.ctx, member); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	switch {
	case loc.member == nil:
		if err := c.store.DeleteProduct(c.ctx, p.ID); err != nil {
			return fmt.Errorf("remove from products: %w", err)
		}
	case loc.member.ID != member.ID:
		if err := loc.detach(c.ctx, c.store); err != nil {
			return fmt.Errorf("detach from member %s: %w", loc.member.Email, err)
		}
	}
	return c.sync(p, member.Email)
}

// cancel reverts a product that never arrived
func (c *cascade) cancel(productID string) error {
	loc, err := locate(c.ctx, c.store, productID)
	if err != nil {
		return err
	}
	p := loc.product

	changed := false
	if p.Status == types.ProductStatusInTransit {
		if loc.member != nil || p.Location == types.LocationEmployee {
			p.Status = types.ProductStatusDelivered
		} else {
			p.Status = types.ProductStatusAvailable
		}
		changed = true
	}
	if p.FPWarehouse != nil && p.FPWarehouse.Status == types.WarehouseStatusInTransit {
		if p.Location == types.LocationFPWarehouse {
			p.FPWarehouse.Status = types.WarehouseStatusStored
		} else {
			p.FPWarehouse = nil
		}
		changed = true
	}
	if !changed {
		return nil
	}

	p.UpdatedAt = c.now
	if err := loc.save(c.ctx, c.store); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return c.sync(p, loc.memberEmail())
}
