package cart

import (
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Item struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Category  string          `json:"category"`
	Quantity  int             `json:"quantity"`
}

type Cart struct {
	UserID string `json:"user_id"`
	Items  []Item `json:"items"`
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) find(productID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// add merges item into the cart, summing quantities for a product already
// present.
func (c *Cart) add(item Item) {
	if i := c.find(item.ProductID); i >= 0 {
		c.Items[i].Quantity += item.Quantity
		return
	}
	c.Items = append(c.Items, item)
}

func (c *Cart) remove(productID uuid.UUID) bool {
	i := c.find(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

// setQuantity removes the item when quantity <= 0.
func (c *Cart) setQuantity(productID uuid.UUID, quantity int) bool {
	if quantity <= 0 {
		return c.remove(productID)
	}
	i := c.find(productID)
	if i < 0 {
		return false
	}
	c.Items[i].Quantity = quantity
	return true
}
