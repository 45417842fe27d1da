package rgrp

import "errors"

var (
	// ErrNoReservation is returned when an allocation is attempted for an
	// inode that holds no reservation.
	ErrNoReservation = errors.New("rgrp: inode has no reservation")
	// ErrNotLocked is returned when a region is modified without holding
	// its lock exclusively on this node.
	ErrNotLocked = errors.New("rgrp: region not locked exclusively")
	// ErrCrossRegion is returned for a free run that leaves its region.
	// Callers split multi-region runs before freeing.
	ErrCrossRegion = errors.New("rgrp: block run crosses region boundary")
	// ErrNotAllocatable is returned for a block outside every region's data
	// range (superblock, region headers, bitmaps).
	ErrNotAllocatable = errors.New("rgrp: block is not in any region")
)
