package delivery

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"wachat-ws/internal/auth"
	"wachat-ws/internal/domain"
)

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var body domain.SendMessageBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body", err)
	}

	msg, err := s.wsManager.Delivery.Send(c.UserContext(), auth.UserID(c), body)
	if err != nil {
		return s.respondError(c, "Failed to send message", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Message sent successfully",
		"data":    msg,
	})
}

func (s *Server) handleMarkRead(c *fiber.Ctx) error {
	var body domain.MarkReadBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body", err)
	}

	updated, err := s.wsManager.Delivery.MarkRead(c.UserContext(), auth.UserID(c), body.MessageIDs, domain.EventMessageRead)
	if err != nil {
		return s.respondError(c, "Failed to mark messages as read", err)
	}
	ids := make([]string, 0, len(updated))
	for _, m := range updated {
		ids = append(ids, m.ID)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Messages marked as read",
		"data": fiber.Map{
			"updated":    len(ids),
			"messageIds": ids,
		},
	})
}

func (s *Server) handleDeleteMessage(c *fiber.Ctx) error {
	if err := s.wsManager.Delivery.Delete(c.UserContext(), c.Params("message_id"), auth.UserID(c)); err != nil {
		return s.respondError(c, "Failed to delete message", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Message deleted successfully",
	})
}

func (s *Server) handleCreateStatus(c *fiber.Ctx) error {
	var body domain.CreateStatusBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body", err)
	}

	status, err := s.wsManager.Statuses.Create(c.UserContext(), auth.UserID(c), body)
	if err != nil {
		return s.respondError(c, "Failed to create status", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Status created successfully",
		"data":    status,
	})
}

func (s *Server) handleListStatuses(c *fiber.Ctx) error {
	statuses, err := s.wsManager.Statuses.Active(c.UserContext())
	if err != nil {
		return s.respondError(c, "Failed to get statuses", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Statuses retrieved successfully",
		"data":    statuses,
	})
}

func (s *Server) handleViewStatus(c *fiber.Ctx) error {
	status, added, err := s.wsManager.Statuses.View(c.UserContext(), c.Params("status_id"), auth.UserID(c))
	if err != nil {
		return s.respondError(c, "Failed to view status", err)
	}
	message := "Status viewed successfully"
	if !added {
		message = "Status already viewed"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    status,
	})
}

func (s *Server) handleDeleteStatus(c *fiber.Ctx) error {
	if err := s.wsManager.Statuses.Delete(c.UserContext(), c.Params("status_id"), auth.UserID(c)); err != nil {
		return s.respondError(c, "Failed to delete status", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Status deleted successfully",
	})
}

func (s *Server) handleGetPresence(c *fiber.Ctx) error {
	status, err := s.wsManager.Registry.QueryStatus(c.UserContext(), c.Params("user_id"))
	if err != nil {
		return s.respondError(c, "Failed to get presence", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Presence retrieved successfully",
		"data":    status,
	})
}

func (s *Server) respondError(c *fiber.Ctx, message string, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		code = fiber.StatusForbidden
	case errors.Is(err, domain.ErrInvalidInput):
		code = fiber.StatusBadRequest
	case errors.Is(err, domain.ErrTransientIO):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg(message)
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
		"error":   err.Error(),
	})
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": message,
		"error":   err.Error(),
	})
}
