package core

import "github.com/google/uuid"

func NewCommissionID() CommissionID { return CommissionID(uuid.NewString()) }
func NewLineItemID() LineItemID     { return LineItemID(uuid.NewString()) }
func NewPayableID() PayableID       { return PayableID(uuid.NewString()) }
