package polyorm

// BeforeSaveInterface runs before validation; an error aborts the save
type BeforeSaveInterface interface {
	BeforeSave(*UnitOfWork) error
}

// AfterSaveInterface runs inside the save transaction after every level
// was written; an error rolls the save back
type AfterSaveInterface interface {
	AfterSave(*UnitOfWork) error
}

// AfterPopulateInterface runs after columns were read from storage
type AfterPopulateInterface interface {
	AfterPopulate(*UnitOfWork) error
}

func (u *UnitOfWork) afterPopulate(obj Entity) error {
	if hook, ok := obj.(AfterPopulateInterface); ok {
		return hook.AfterPopulate(u)
	}
	return nil
}
