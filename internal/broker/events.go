package broker

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// EventPublisher handles publishing order notifications
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// PublishOrderCreated notifies that an order has been committed
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	data := make([]models.OrderItemData, 0, len(items))
	for _, it := range items {
		data = append(data, models.OrderItemData{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderCreated),
		OrderID:        order.ID,
		CustomerName:   order.CustomerName,
		CustomerPhone:  order.CustomerPhone,
		PaymentMethod:  order.PaymentMethod,
		InventoryPool:  order.InventoryPool,
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		Items:          data,
	}
	return ep.producer.PublishEvent(ctx, orderKey(order.ID), event.EventType, event)
}

// PublishOrderDeleted notifies that an order was soft-deleted
func (ep *EventPublisher) PublishOrderDeleted(ctx context.Context, order *models.Order) error {
	return ep.publishLifecycle(ctx, models.EventTypeOrderDeleted, order)
}

// PublishOrderRestored notifies that a soft-deleted order was restored
func (ep *EventPublisher) PublishOrderRestored(ctx context.Context, order *models.Order) error {
	return ep.publishLifecycle(ctx, models.EventTypeOrderRestored, order)
}

func (ep *EventPublisher) publishLifecycle(ctx context.Context, eventType string, order *models.Order) error {
	event := &models.OrderLifecycleEvent{
		BaseEvent:     newBaseEvent(eventType),
		OrderID:       order.ID,
		CustomerPhone: order.CustomerPhone,
	}
	return ep.producer.PublishEvent(ctx, orderKey(order.ID), eventType, event)
}
